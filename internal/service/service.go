// Package service provides the marketplace business logic: the request
// lifecycle, item availability, conversations, statistics and catalogue.
package service

import (
	"context"
	"time"

	"kindkart/internal/models"
)

// Actor is the authenticated principal an operation runs on behalf of.
type Actor struct {
	ID   uint
	Role models.Role
}

// IsAdmin reports whether the actor moderates the marketplace.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// ActorFor returns the Actor for a loaded user.
func ActorFor(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

// EventPublisher receives lifecycle events after their transaction commits.
// Implementations must not block the caller for long; failures are theirs to log.
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, event models.RequestEvent)
}

type noopPublisher struct{}

func (noopPublisher) PublishRequestEvent(context.Context, models.RequestEvent) {}

// Clock returns the current time.
type Clock func() time.Time
