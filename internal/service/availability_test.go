package service

import (
	"context"
	"testing"
	"time"

	"kindkart/internal/models"
	"kindkart/internal/repository"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardMutable(t *testing.T) {
	tests := []struct {
		status  models.ItemStatus
		blocked bool
	}{
		{models.ItemStatusAvailable, false},
		{models.ItemStatusRequested, true},
		{models.ItemStatusAccepted, true},
		{models.ItemStatusCompleted, false},
		{models.ItemStatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			err := GuardMutable(&models.Item{Status: tt.status})
			if tt.blocked {
				assertCode(t, err, models.CodeConflict)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAvailabilityManager_Lifecycle(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	m := NewAvailabilityManager(repository.NewItemRepository(db))
	donor := testutil.CreateUser(t, db, models.RoleDonor)
	item := testutil.CreateItem(t, db, donor)

	require.NoError(t, m.Reserve(ctx, item.ID, 1, time.Now()))
	assertCode(t, m.Reserve(ctx, item.ID, 2, time.Now()), models.CodeConflict)

	assertCode(t, m.Advance(ctx, item.ID, 1, models.ItemStatusAvailable), models.CodeInternal)
	assertCode(t, m.Advance(ctx, item.ID, 2, models.ItemStatusAccepted), models.CodeConflict)
	require.NoError(t, m.Advance(ctx, item.ID, 1, models.ItemStatusAccepted))
	assert.Equal(t, models.ItemStatusAccepted, testutil.ReloadItem(t, db, item.ID).Status)

	require.NoError(t, m.Release(ctx, item.ID, 1))
	got := testutil.ReloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusAvailable, got.Status)
	assert.Nil(t, got.CurrentRequestID)
	assertCode(t, m.Release(ctx, item.ID, 1), models.CodeConflict)
}
