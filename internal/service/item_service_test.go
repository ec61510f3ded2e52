package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"kindkart/internal/models"
	"kindkart/internal/repository"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validItemInput() CreateItemInput {
	return CreateItemInput{
		Title:       "Winter coat",
		Description: "Warm wool coat, size M",
		Category:    "clothing",
		Condition:   "good",
		Location:    models.Location{City: "Austin", State: "TX"},
	}
}

func TestItemService_Create(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	svc := NewItemService(repository.NewItemRepository(db), nil)
	donor := testutil.CreateUser(t, db, models.RoleDonor)
	recipient := testutil.CreateUser(t, db, models.RoleRecipient)

	item, err := svc.Create(ctx, ActorFor(donor), validItemInput())
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusAvailable, item.Status)
	assert.Equal(t, models.PickupOrDrop, item.PickupPreference)
	assert.True(t, item.IsVisible)
	require.NotNil(t, item.Donor)
	assert.Equal(t, donor.ID, item.Donor.ID)

	_, err = svc.Create(ctx, ActorFor(recipient), validItemInput())
	assertCode(t, err, models.CodeForbidden)

	past := time.Now().Add(-time.Hour)
	tests := []struct {
		name   string
		mutate func(*CreateItemInput)
	}{
		{"blank title", func(in *CreateItemInput) { in.Title = " " }},
		{"long title", func(in *CreateItemInput) { in.Title = strings.Repeat("t", 101) }},
		{"long description", func(in *CreateItemInput) { in.Description = strings.Repeat("d", 1001) }},
		{"unknown category", func(in *CreateItemInput) { in.Category = "vehicles" }},
		{"unknown condition", func(in *CreateItemInput) { in.Condition = "broken" }},
		{"unknown pickup", func(in *CreateItemInput) { in.PickupPreference = "courier" }},
		{"expired", func(in *CreateItemInput) { in.ExpiresAt = &past }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validItemInput()
			tt.mutate(&in)
			_, err := svc.Create(ctx, ActorFor(donor), in)
			assertCode(t, err, models.CodeValidation)
		})
	}
}

func TestItemService_GetCountsViewsAndHidesHidden(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	repo := repository.NewItemRepository(db)
	svc := NewItemService(repo, nil)
	donor := testutil.CreateUser(t, db, models.RoleDonor)
	viewer := ActorFor(testutil.CreateUser(t, db, models.RoleRecipient))
	item := testutil.CreateItem(t, db, donor)

	got, err := svc.Get(ctx, nil, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewCount)

	got, err = svc.Get(ctx, &viewer, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ViewCount)

	owner := ActorFor(donor)
	got, err = svc.Get(ctx, &owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ViewCount)

	require.NoError(t, repo.SetVisibility(ctx, item.ID, false))
	_, err = svc.Get(ctx, &viewer, item.ID)
	assertCode(t, err, models.CodeNotFound)
	_, err = svc.Get(ctx, &owner, item.ID)
	require.NoError(t, err)
}

func TestItemService_EditsBlockedDuringNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewItemService(repository.NewItemRepository(f.db), nil)
	owner := ActorFor(f.donor)
	title := "Renamed"

	_, err := svc.Update(ctx, ActorFor(f.requester), f.item.ID, UpdateItemInput{Title: &title})
	assertCode(t, err, models.CodeForbidden)

	updated, err := svc.Update(ctx, owner, f.item.ID, UpdateItemInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	_, err = svc.Update(ctx, owner, f.item.ID, UpdateItemInput{})
	assertCode(t, err, models.CodeValidation)

	f.open(t, f.requester)
	title = "Renamed again"
	_, err = svc.Update(ctx, owner, f.item.ID, UpdateItemInput{Title: &title})
	assertCode(t, err, models.CodeConflict)
	assertCode(t, svc.Delete(ctx, owner, f.item.ID), models.CodeConflict)
	_, err = svc.Withdraw(ctx, owner, f.item.ID)
	assertCode(t, err, models.CodeConflict)

	assert.Equal(t, "Renamed", testutil.ReloadItem(t, f.db, f.item.ID).Title)
	assertItemInvariants(t, f.db)
}

func TestItemService_WithdrawRelistDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewItemService(repository.NewItemRepository(f.db), nil)
	owner := ActorFor(f.donor)

	item, err := svc.Withdraw(ctx, owner, f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusCancelled, item.Status)

	_, err = f.requests.Create(ctx, ActorFor(f.requester), CreateRequestInput{ItemID: f.item.ID})
	assertCode(t, err, models.CodeConflict)

	_, err = svc.Withdraw(ctx, owner, f.item.ID)
	assertCode(t, err, models.CodeInvalidTransition)

	item, err = svc.Relist(ctx, owner, f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusAvailable, item.Status)

	require.NoError(t, svc.Delete(ctx, owner, f.item.ID))
	_, err = svc.Get(ctx, nil, f.item.ID)
	assertCode(t, err, models.CodeNotFound)
}

func TestItemService_VisibilityAndListings(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	svc := NewItemService(repository.NewItemRepository(db), nil)
	donor := testutil.CreateUser(t, db, models.RoleDonor)
	admin := ActorFor(testutil.CreateUser(t, db, models.RoleAdmin))
	a := testutil.CreateItem(t, db, donor)
	testutil.CreateItem(t, db, donor)

	_, err := svc.SetVisibility(ctx, ActorFor(donor), a.ID, false)
	assertCode(t, err, models.CodeForbidden)
	hidden, err := svc.SetVisibility(ctx, admin, a.ID, false)
	require.NoError(t, err)
	assert.False(t, hidden.IsVisible)

	items, total, err := svc.ListAvailable(ctx, repository.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)

	_, total, err = svc.ListByDonor(ctx, nil, donor.ID, repository.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	owner := ActorFor(donor)
	_, total, err = svc.ListByDonor(ctx, &owner, donor.ID, repository.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
