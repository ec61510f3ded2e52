package server

import (
	"fmt"
	"net/http"
	"testing"

	"kindkart/internal/models"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateItem(t *testing.T) {
	api := newTestAPI(t, "")
	donor := testutil.CreateUser(t, api.db, models.RoleDonor)
	recipient := testutil.CreateUser(t, api.db, models.RoleRecipient)

	valid := jsonMap{
		"title":       "Oak bookshelf",
		"description": "Five shelves, some scratches",
		"category":    "furniture",
		"condition":   "good",
		"location":    jsonMap{"city": "Portland", "state": "OR"},
	}

	tests := []struct {
		name           string
		user           *models.User
		body           jsonMap
		expectedStatus int
	}{
		{name: "donor lists item", user: donor, body: valid, expectedStatus: http.StatusCreated},
		{name: "recipient cannot list", user: recipient, body: valid, expectedStatus: http.StatusForbidden},
		{
			name: "unknown category",
			user: donor,
			body: jsonMap{
				"title": "Lamp", "description": "Works", "category": "spaceships", "condition": "good",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing title",
			user:           donor,
			body:           jsonMap{"description": "Works", "category": "furniture", "condition": "good"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := api.do(http.MethodPost, "/api/items", tt.user, tt.body)
			assert.Equal(t, tt.expectedStatus, status, string(raw))
		})
	}

	var page struct {
		Data  []models.Item `json:"data"`
		Total int64         `json:"total"`
	}
	status, raw := api.do(http.MethodGet, "/api/items", nil, nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, raw, &page)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "Oak bookshelf", page.Data[0].Title)
	assert.Equal(t, models.PickupOrDrop, page.Data[0].PickupPreference)
}

func TestGetItem_ViewCountAndVisibility(t *testing.T) {
	api := newTestAPI(t, "")
	donor := testutil.CreateUser(t, api.db, models.RoleDonor)
	admin := testutil.CreateUser(t, api.db, models.RoleAdmin)
	item := testutil.CreateItem(t, api.db, donor)
	path := fmt.Sprintf("/api/items/%d", item.ID)

	status, _ := api.do(http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodGet, path, donor, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, testutil.ReloadItem(t, api.db, item.ID).ViewCount, "owner views are not counted")

	status, _ = api.do(http.MethodPut, fmt.Sprintf("/api/admin/items/%d/visibility", item.ID), admin, jsonMap{"visible": false})
	require.Equal(t, http.StatusOK, status)

	status, _ = api.do(http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = api.do(http.MethodGet, path, donor, nil)
	assert.Equal(t, http.StatusOK, status)

	var page struct {
		Total int64 `json:"total"`
	}
	_, raw := api.do(http.MethodGet, fmt.Sprintf("/api/users/%d/items", donor.ID), nil, nil)
	decode(t, raw, &page)
	assert.Equal(t, int64(0), page.Total)
	_, raw = api.do(http.MethodGet, fmt.Sprintf("/api/users/%d/items", donor.ID), donor, nil)
	decode(t, raw, &page)
	assert.Equal(t, int64(1), page.Total)
}

func TestUpdateAndDeleteItem_GuardedWhileHeld(t *testing.T) {
	api := newTestAPI(t, "")
	donor := testutil.CreateUser(t, api.db, models.RoleDonor)
	requester := testutil.CreateUser(t, api.db, models.RoleRecipient)
	item := testutil.CreateItem(t, api.db, donor)
	path := fmt.Sprintf("/api/items/%d", item.ID)

	status, raw := api.do(http.MethodPut, path, donor, jsonMap{"title": "Renamed"})
	require.Equal(t, http.StatusOK, status, string(raw))
	var updated models.Item
	decode(t, raw, &updated)
	assert.Equal(t, "Renamed", updated.Title)

	status, _ = api.do(http.MethodPut, path, requester, jsonMap{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, status)

	req := api.openRequest(requester, item)

	status, raw = api.do(http.MethodPut, path, donor, jsonMap{"title": "Sneaky edit"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeConflict, errorCode(t, raw))

	status, _ = api.do(http.MethodDelete, path, donor, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = api.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/cancel", req.ID), requester, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = api.do(http.MethodDelete, path, donor, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWithdrawAndRelistItem(t *testing.T) {
	api := newTestAPI(t, "")
	donor := testutil.CreateUser(t, api.db, models.RoleDonor)
	requester := testutil.CreateUser(t, api.db, models.RoleRecipient)
	item := testutil.CreateItem(t, api.db, donor)

	status, raw := api.do(http.MethodPost, fmt.Sprintf("/api/items/%d/withdraw", item.ID), donor, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, models.ItemStatusCancelled, testutil.ReloadItem(t, api.db, item.ID).Status)

	status, raw = api.do(http.MethodPost, "/api/requests", requester, jsonMap{"item_id": item.ID})
	assert.Equal(t, http.StatusConflict, status, string(raw))

	status, raw = api.do(http.MethodPost, fmt.Sprintf("/api/items/%d/withdraw", item.ID), donor, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeInvalidTransition, errorCode(t, raw))

	status, _ = api.do(http.MethodPost, fmt.Sprintf("/api/items/%d/relist", item.ID), donor, nil)
	require.Equal(t, http.StatusOK, status)
	api.openRequest(requester, item)
}
