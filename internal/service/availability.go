package service

import (
	"context"
	"fmt"
	"time"

	"kindkart/internal/models"
	"kindkart/internal/repository"
)

// AvailabilityManager moves an item through its availability states on
// behalf of the request that holds it. Every change is a conditional update,
// so an item can be held by at most one request.
type AvailabilityManager struct {
	items repository.ItemRepository
}

// NewAvailabilityManager returns a manager over items. Build it over a
// transaction-bound repository to make its changes part of that transaction.
func NewAvailabilityManager(items repository.ItemRepository) *AvailabilityManager {
	return &AvailabilityManager{items: items}
}

// Reserve marks an available item as requested by requestID.
// ConflictError means another request got there first, or the item was
// hidden or expired in the meantime.
func (m *AvailabilityManager) Reserve(ctx context.Context, itemID, requestID uint, now time.Time) error {
	return m.items.Reserve(ctx, itemID, requestID, now)
}

// Advance moves a held item to accepted or completed.
func (m *AvailabilityManager) Advance(ctx context.Context, itemID, requestID uint, status models.ItemStatus) error {
	if status != models.ItemStatusAccepted && status != models.ItemStatusCompleted {
		return models.NewInternalError(fmt.Errorf("cannot advance item %d to %q", itemID, status))
	}
	return m.items.SetStatusForRequest(ctx, itemID, requestID, status)
}

// Release makes a held item available again.
func (m *AvailabilityManager) Release(ctx context.Context, itemID, requestID uint) error {
	return m.items.Release(ctx, itemID, requestID)
}

// GuardMutable refuses direct edits of an item under active negotiation.
func GuardMutable(item *models.Item) error {
	if item.Status.UnderNegotiation() {
		return models.NewConflictError("Item cannot be changed while a request is active")
	}
	return nil
}
