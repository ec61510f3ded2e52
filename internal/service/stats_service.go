package service

import (
	"context"

	"kindkart/internal/models"
	"kindkart/internal/repository"
)

// StatsAggregator owns the counters on User.Stats.
type StatsAggregator struct {
	users    repository.UserRepository
	requests repository.RequestRepository
}

// NewStatsAggregator returns an aggregator over the given repositories.
func NewStatsAggregator(users repository.UserRepository, requests repository.RequestRepository) *StatsAggregator {
	return &StatsAggregator{users: users, requests: requests}
}

// OnCompleted credits both participants of a completed request. It does not
// guard against being called twice; the lifecycle's one-shot completion does.
func (a *StatsAggregator) OnCompleted(ctx context.Context, req *models.Request) error {
	if err := a.users.IncrementStats(ctx, req.DonorID, models.UserStats{ItemsDonated: 1, TotalImpact: 1}); err != nil {
		return err
	}
	return a.users.IncrementStats(ctx, req.RequesterID, models.UserStats{ItemsReceived: 1})
}

// Reconcile recomputes a user's counters from their completed requests.
func (a *StatsAggregator) Reconcile(ctx context.Context, userID uint) (*models.UserStats, error) {
	if _, err := a.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	asDonor, asRequester, err := a.requests.CountCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := models.UserStats{
		ItemsDonated:  int(asDonor),
		ItemsReceived: int(asRequester),
		TotalImpact:   int(asDonor),
	}
	if err := a.users.SetStats(ctx, userID, stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
