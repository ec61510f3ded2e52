package repository

import (
	"context"
	"testing"
	"time"

	"kindkart/internal/models"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRepository_ReserveIsConditional(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	donor := testutil.CreateUser(t, db, models.RoleDonor)
	item := testutil.CreateItem(t, db, donor)

	require.NoError(t, repo.Reserve(ctx, item.ID, 11, time.Now()))

	err := repo.Reserve(ctx, item.ID, 12, time.Now())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	got := testutil.ReloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusRequested, got.Status)
	require.NotNil(t, got.CurrentRequestID)
	assert.Equal(t, uint(11), *got.CurrentRequestID)

	err = repo.Reserve(ctx, 9999, 1, time.Now())
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestItemRepository_ReserveRechecksVisibilityAndExpiry(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	now := time.Now()

	donor := testutil.CreateUser(t, db, models.RoleDonor)
	hidden := testutil.CreateItem(t, db, donor)
	require.NoError(t, repo.SetVisibility(ctx, hidden.ID, false))

	expired := testutil.CreateItem(t, db, donor)
	require.NoError(t, db.Model(expired).Update("expires_at", now.Add(-time.Minute)).Error)

	fresh := testutil.CreateItem(t, db, donor)
	require.NoError(t, db.Model(fresh).Update("expires_at", now.Add(time.Hour)).Error)

	for _, item := range []*models.Item{hidden, expired} {
		err := repo.Reserve(ctx, item.ID, 11, now)
		assert.True(t, models.IsCode(err, models.CodeConflict), "item %d", item.ID)

		got := testutil.ReloadItem(t, db, item.ID)
		assert.Equal(t, models.ItemStatusAvailable, got.Status)
		assert.Nil(t, got.CurrentRequestID)
	}

	require.NoError(t, repo.Reserve(ctx, fresh.ID, 12, now))
}

func TestItemRepository_ReleaseRequiresHoldingRequest(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	donor := testutil.CreateUser(t, db, models.RoleDonor)
	item := testutil.CreateItem(t, db, donor)
	require.NoError(t, repo.Reserve(ctx, item.ID, 5, time.Now()))

	err := repo.Release(ctx, item.ID, 6)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	require.NoError(t, repo.SetStatusForRequest(ctx, item.ID, 5, models.ItemStatusAccepted))
	require.NoError(t, repo.Release(ctx, item.ID, 5))

	got := testutil.ReloadItem(t, db, item.ID)
	assert.Equal(t, models.ItemStatusAvailable, got.Status)
	assert.Nil(t, got.CurrentRequestID)
}

func TestItemRepository_GuardedUpdateAndDelete(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	donor := testutil.CreateUser(t, db, models.RoleDonor)
	item := testutil.CreateItem(t, db, donor)

	require.NoError(t, repo.UpdateUnlessNegotiating(ctx, item.ID, map[string]interface{}{"title": "Oak table"}))
	require.NoError(t, repo.Reserve(ctx, item.ID, 3, time.Now()))

	err := repo.UpdateUnlessNegotiating(ctx, item.ID, map[string]interface{}{"title": "Pine table"})
	assert.True(t, models.IsCode(err, models.CodeConflict))
	err = repo.DeleteUnlessNegotiating(ctx, item.ID)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	assert.Equal(t, "Oak table", testutil.ReloadItem(t, db, item.ID).Title)
}

func TestItemRepository_ListAvailableSkipsHeldAndHidden(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	donor := testutil.CreateUser(t, db, models.RoleDonor)
	open := testutil.CreateItem(t, db, donor)
	held := testutil.CreateItem(t, db, donor)
	hidden := testutil.CreateItem(t, db, donor)
	require.NoError(t, repo.Reserve(ctx, held.ID, 1, time.Now()))
	require.NoError(t, repo.SetVisibility(ctx, hidden.ID, false))

	items, total, err := repo.ListAvailable(ctx, Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, open.ID, items[0].ID)
	require.NotNil(t, items[0].Donor)
	assert.Equal(t, donor.ID, items[0].Donor.ID)

	mine, total, err := repo.ListByDonor(ctx, donor.ID, true, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, mine, 3)

	count, err := repo.CountNegotiatingByDonor(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestItemRepository_TransitionListing(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	donor := testutil.CreateUser(t, db, models.RoleDonor)
	item := testutil.CreateItem(t, db, donor)

	require.NoError(t, repo.TransitionListing(ctx, item.ID, models.ItemStatusAvailable, models.ItemStatusCancelled))
	err := repo.TransitionListing(ctx, item.ID, models.ItemStatusAvailable, models.ItemStatusCancelled)
	assert.True(t, models.IsCode(err, models.CodeConflict))
	require.NoError(t, repo.TransitionListing(ctx, item.ID, models.ItemStatusCancelled, models.ItemStatusAvailable))
}

func TestItemRepository_ListSearchAndAggregates(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	donor := testutil.CreateUser(t, db, models.RoleDonor)
	sofa := testutil.CreateItem(t, db, donor)
	require.NoError(t, db.Model(sofa).Updates(map[string]interface{}{
		"title": "Sofa 100% wool", "category": "furniture", "location_city": "Leeds", "location_state": "WY",
	}).Error)
	books := testutil.CreateItem(t, db, donor)
	require.NoError(t, db.Model(books).Updates(map[string]interface{}{
		"title": "Books", "description": "Paperbacks", "category": "books", "location_city": "Leeds", "location_state": "WY",
		"is_visible": false,
	}).Error)
	old := testutil.CreateItem(t, db, donor)
	require.NoError(t, db.Model(old).Updates(map[string]interface{}{
		"title": "Lamp", "category": "books", "location_city": "York", "created_at": time.Now().Add(-48 * time.Hour),
	}).Error)

	found, total, err := repo.List(ctx, ItemFilter{Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, sofa.ID, found[0].ID)

	found, _, err = repo.List(ctx, ItemFilter{Search: "PAPERBACK"})
	require.NoError(t, err)
	require.Len(t, found, 1, "search covers description and hidden items")
	assert.Equal(t, books.ID, found[0].ID)

	visible := true
	_, total, err = repo.List(ctx, ItemFilter{Visible: &visible, Category: "books"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	since := time.Now().Add(-24 * time.Hour)
	count, err := repo.CountCreatedSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	categories, err := repo.CountByCategory(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{{Category: "books", Count: 2}, {Category: "furniture", Count: 1}}, categories)

	locations, err := repo.TopLocations(ctx, since, 10)
	require.NoError(t, err)
	assert.Equal(t, []LocationCount{{City: "Leeds", State: "WY", Count: 2}}, locations)
}
