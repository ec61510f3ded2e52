package seed

import (
	"context"
	"testing"

	"kindkart/internal/models"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testOptions() Options {
	return Options{
		Donors:        2,
		Recipients:    2,
		NGOs:          1,
		ItemsPerDonor: 3,
		Requests:      5,
		Admins:        []Account{{Name: "Ops", Email: "ops@kindkart.test"}},
		BcryptCost:    bcrypt.MinCost,
	}
}

func TestRun_DrivesRequestsThroughLifecycle(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()

	summary, err := NewSeeder(db, testOptions()).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Users)
	assert.Equal(t, 6, summary.Items)
	for _, status := range []models.RequestStatus{
		models.RequestStatusPending,
		models.RequestStatusAccepted,
		models.RequestStatusRejected,
		models.RequestStatusCompleted,
		models.RequestStatusCancelled,
	} {
		assert.Equal(t, 1, summary.Requests[status], "status %s", status)
	}

	var items []models.Item
	require.NoError(t, db.Find(&items).Error)
	for _, item := range items {
		if item.Status == models.ItemStatusAvailable {
			assert.Nil(t, item.CurrentRequestID, "item %d", item.ID)
		} else {
			assert.NotNil(t, item.CurrentRequestID, "item %d", item.ID)
		}
	}

	var completed models.Request
	require.NoError(t, db.Where("status = ?", models.RequestStatusCompleted).First(&completed).Error)
	assert.Equal(t, 1, testutil.ReloadUser(t, db, completed.DonorID).Stats.ItemsDonated)
	assert.Equal(t, 1, testutil.ReloadUser(t, db, completed.RequesterID).Stats.ItemsReceived)

	var messages int64
	require.NoError(t, db.Model(&models.RequestMessage{}).Count(&messages).Error)
	assert.Equal(t, int64(4), messages)
}

func TestRun_AdminCanSignIn(t *testing.T) {
	db := testutil.OpenDB(t)

	_, err := NewSeeder(db, testOptions()).Run(context.Background())
	require.NoError(t, err)

	var admin models.User
	require.NoError(t, db.Where("email = ?", "ops@kindkart.test").First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.IsVerified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(DemoPassword)))
}

func TestRun_NoRequesters(t *testing.T) {
	db := testutil.OpenDB(t)
	opts := testOptions()
	opts.Recipients, opts.NGOs = 0, 0

	summary, err := NewSeeder(db, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Requests)
	assert.Equal(t, 6, summary.Items)
}

func TestClearAll(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	s := NewSeeder(db, testOptions())

	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.ClearAll(ctx))

	for _, model := range []interface{}{
		&models.User{}, &models.Item{}, &models.Request{}, &models.StatusChange{}, &models.RequestMessage{},
	} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T", model)
	}
}

func TestParsePreset(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name: "full",
			input: `donors: 3
recipients: 4
ngos: 1
items_per_donor: 2
requests: 5
admins:
  - name: Ops
    email: ops@kindkart.test
`,
		},
		{name: "unknown key", input: "donnors: 3\n", wantErr: true},
		{name: "negative", input: "requests: -1\n", wantErr: true},
		{name: "admin without email", input: "admins:\n  - name: Ops\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePreset([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			opts := p.Options(Options{BcryptCost: bcrypt.MinCost})
			assert.Equal(t, 3, opts.Donors)
			assert.Equal(t, 2, opts.ItemsPerDonor)
			assert.Equal(t, bcrypt.MinCost, opts.BcryptCost)
			require.Len(t, opts.Admins, 1)
			assert.Equal(t, "ops@kindkart.test", opts.Admins[0].Email)
		})
	}
}
