package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"kindkart/internal/config"
	"kindkart/internal/models"
	"kindkart/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testAPI struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
}

func newTestAPI(t *testing.T, featureFlags string) *testAPI {
	t.Helper()

	db := testutil.OpenDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		JWTSecret:    testutil.JWTSecret,
		JWTIssuer:    testutil.JWTIssuer,
		JWTAudience:  testutil.JWTAudience,
		Port:         "0",
		FeatureFlags: featureFlags,
	}
	s, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	return &testAPI{t: t, app: s.App(), db: db, mr: mr}
}

// do sends a JSON request as user (anonymous when nil) and returns the
// status code and raw body.
func (a *testAPI) do(method, path string, user *models.User, body interface{}) (int, []byte) {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+testutil.Token(a.t, user.ID))
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp.StatusCode, raw
}

func decode(t *testing.T, raw []byte, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dest), string(raw))
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body models.ErrorResponse
	decode(t, raw, &body)
	return body.Code
}

func TestHealthChecks(t *testing.T) {
	api := newTestAPI(t, "")

	status, _ := api.do(http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw := api.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, raw, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["database"])
	assert.Equal(t, "healthy", body.Checks["redis"])
}

func TestReadinessCheck_RedisDownIsDegraded(t *testing.T) {
	api := newTestAPI(t, "")
	api.mr.Close()

	status, raw := api.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"degraded"`)
}

func TestSecurityHeaders(t *testing.T) {
	api := newTestAPI(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, "")

	api.do(http.MethodGet, "/api/items", nil, nil)
	status, raw := api.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestSwaggerDoc(t *testing.T) {
	api := newTestAPI(t, "")

	status, raw := api.do(http.MethodGet, "/swagger/doc.json", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "/requests/{id}/complete")
	assert.Contains(t, string(raw), "/admin/analytics")
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t, "")
	user := testutil.CreateUser(t, api.db, models.RoleRecipient)

	t.Run("missing token", func(t *testing.T) {
		status, _ := api.do(http.MethodGet, "/api/requests/sent", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("malformed token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/requests/sent", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		resp, err := api.app.Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		status, raw := api.do(http.MethodGet, "/api/requests/sent", &models.User{ID: 9999}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, models.CodeUnauthorized, errorCode(t, raw))
	})

	t.Run("valid token", func(t *testing.T) {
		status, _ := api.do(http.MethodGet, "/api/requests/sent", user, nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("blocked user", func(t *testing.T) {
		require.NoError(t, api.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_blocked", true).Error)
		status, raw := api.do(http.MethodGet, "/api/requests/sent", user, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, models.CodeForbidden, errorCode(t, raw))
	})
}

func TestAdminRequired(t *testing.T) {
	api := newTestAPI(t, "")
	donor := testutil.CreateUser(t, api.db, models.RoleDonor)
	admin := testutil.CreateUser(t, api.db, models.RoleAdmin)

	status, _ := api.do(http.MethodGet, "/api/admin/dashboard", donor, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = api.do(http.MethodGet, "/api/admin/dashboard", admin, nil)
	assert.Equal(t, http.StatusOK, status)
}
