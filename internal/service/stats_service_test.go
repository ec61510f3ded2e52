package service

import (
	"context"
	"testing"

	"kindkart/internal/models"
	"kindkart/internal/repository"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsAggregator_OnCompleted(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	donor := testutil.CreateUser(t, db, models.RoleDonor)
	requester := testutil.CreateUser(t, db, models.RoleNGO)

	agg := NewStatsAggregator(repository.NewUserRepository(db), repository.NewRequestRepository(db))
	req := &models.Request{DonorID: donor.ID, RequesterID: requester.ID}
	require.NoError(t, agg.OnCompleted(ctx, req))
	require.NoError(t, agg.OnCompleted(ctx, req))

	assert.Equal(t, models.UserStats{ItemsDonated: 2, TotalImpact: 2}, testutil.ReloadUser(t, db, donor.ID).Stats)
	assert.Equal(t, models.UserStats{ItemsReceived: 2}, testutil.ReloadUser(t, db, requester.ID).Stats)

	assertCode(t, agg.OnCompleted(ctx, &models.Request{DonorID: 999, RequesterID: requester.ID}), models.CodeNotFound)
}

func TestStatsAggregator_Reconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.open(t, f.requester)
	_, err := f.requests.Accept(ctx, ActorFor(f.donor), req.ID)
	require.NoError(t, err)
	_, err = f.requests.Complete(ctx, ActorFor(f.donor), req.ID, CompleteRequestInput{})
	require.NoError(t, err)

	users := repository.NewUserRepository(f.db)
	require.NoError(t, users.SetStats(ctx, f.donor.ID, models.UserStats{ItemsDonated: 9, TotalImpact: 4}))

	agg := NewStatsAggregator(users, repository.NewRequestRepository(f.db))
	stats, err := agg.Reconcile(ctx, f.donor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{ItemsDonated: 1, TotalImpact: 1}, *stats)
	assert.Equal(t, *stats, testutil.ReloadUser(t, f.db, f.donor.ID).Stats)

	_, err = agg.Reconcile(ctx, 31337)
	assertCode(t, err, models.CodeNotFound)
}
