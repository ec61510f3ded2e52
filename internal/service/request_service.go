package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"kindkart/internal/cache"
	"kindkart/internal/models"
	"kindkart/internal/observability"
	"kindkart/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const (
	maxRequestMessage      = 500
	maxSpecialInstructions = 200
	maxCompletionComment   = 500
	maxStatusReason        = 200
)

// Expiry triggers, used as the metric label.
const (
	ExpiryTriggerLazy  = "lazy"
	ExpiryTriggerSweep = "sweep"
)

// RequestService runs the request lifecycle. Each transition changes the
// request status with a compare-and-swap and applies its item and statistics
// side effects in the same database transaction.
type RequestService struct {
	db        *gorm.DB
	requests  repository.RequestRepository
	items     repository.ItemRepository
	publisher EventPublisher
	cache     *cache.Aside
	now       Clock
	ttl       time.Duration
}

// RequestServiceOption customises a RequestService.
type RequestServiceOption func(*RequestService)

// WithPublisher sets the lifecycle event sink.
func WithPublisher(p EventPublisher) RequestServiceOption {
	return func(s *RequestService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now Clock) RequestServiceOption {
	return func(s *RequestService) { s.now = now }
}

// WithPendingTTL sets how long a new request stays pending before it expires.
func WithPendingTTL(ttl time.Duration) RequestServiceOption {
	return func(s *RequestService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCache sets the cache invalidated when participants' stats change.
func WithCache(a *cache.Aside) RequestServiceOption {
	return func(s *RequestService) { s.cache = a }
}

// NewRequestService returns a RequestService over db.
func NewRequestService(db *gorm.DB, opts ...RequestServiceOption) *RequestService {
	s := &RequestService{
		db:        db,
		requests:  repository.NewRequestRepository(db),
		items:     repository.NewItemRepository(db),
		publisher: noopPublisher{},
		now:       time.Now,
		ttl:       models.DefaultRequestTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequestInput is the input for opening a request.
type CreateRequestInput struct {
	ItemID  uint
	Message string
	Pickup  models.PickupDetails
}

// CompleteRequestInput is the optional feedback recorded on completion.
type CompleteRequestInput struct {
	Rating  *int
	Comment string
}

func (in CreateRequestInput) validate() error {
	if in.ItemID == 0 {
		return models.NewValidationError("item_id is required")
	}
	if utf8.RuneCountInString(in.Message) > maxRequestMessage {
		return models.NewValidationError(fmt.Sprintf("message must be at most %d characters", maxRequestMessage))
	}
	if utf8.RuneCountInString(in.Pickup.SpecialInstructions) > maxSpecialInstructions {
		return models.NewValidationError(fmt.Sprintf("special instructions must be at most %d characters", maxSpecialInstructions))
	}
	return nil
}

func (in CompleteRequestInput) validate() error {
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return models.NewValidationError("rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(in.Comment) > maxCompletionComment {
		return models.NewValidationError(fmt.Sprintf("comment must be at most %d characters", maxCompletionComment))
	}
	return nil
}

func validateReason(reason string) error {
	if utf8.RuneCountInString(reason) > maxStatusReason {
		return models.NewValidationError(fmt.Sprintf("reason must be at most %d characters", maxStatusReason))
	}
	return nil
}

// Create opens a pending request on an available item and reserves the item.
func (s *RequestService) Create(ctx context.Context, actor Actor, in CreateRequestInput) (req *models.Request, err error) {
	ctx, span := observability.StartSpan(ctx, "request.create",
		attribute.Int64("item.id", int64(in.ItemID)),
		attribute.Int64("actor.id", int64(actor.ID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if !actor.Role.CanRequest() {
		return nil, models.NewForbiddenError("Your role cannot request items")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	item, err := s.items.GetByID(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if item.DonorID == actor.ID {
		return nil, models.NewForbiddenError("You cannot request your own item")
	}
	active, err := s.requests.HasActive(ctx, item.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, models.NewConflictError("You already have an active request for this item")
	}
	now := s.now()
	if !item.IsRequestable(now) {
		return nil, models.NewConflictError("Item is not available")
	}

	created := &models.Request{
		ItemID:      item.ID,
		RequesterID: actor.ID,
		DonorID:     item.DonorID,
		Status:      models.RequestStatusPending,
		Message:     in.Message,
		Pickup:      in.Pickup,
		ExpiresAt:   now.Add(s.ttl),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := repository.NewRequestRepository(tx)
		items := repository.NewItemRepository(tx)

		if err := requests.Create(ctx, created); err != nil {
			return err
		}
		if err := requests.AppendStatusChange(ctx, &models.StatusChange{
			RequestID:   created.ID,
			Status:      models.RequestStatusPending,
			ChangedByID: &actor.ID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := NewAvailabilityManager(items).Reserve(ctx, item.ID, created.ID, now); err != nil {
			return err
		}
		return items.IncrementRequestCount(ctx, item.ID)
	})
	if err != nil {
		s.countConflict(models.EventRequestCreated, err)
		return nil, err
	}

	s.committed(ctx, created, models.EventRequestCreated, actor.ID)
	return s.detailed(ctx, created.ID, actor)
}

// transition describes one lifecycle edge out of an existing request.
type transition struct {
	event   models.RequestEventType
	from    []models.RequestStatus
	to      models.RequestStatus
	reason  string
	allowed func(actor Actor, req *models.Request) bool
	columns func(actor Actor, now time.Time) map[string]interface{}
	effects func(ctx context.Context, tx *gorm.DB, req *models.Request) error
}

func donorOrAdmin(actor Actor, req *models.Request) bool {
	return actor.IsAdmin() || req.DonorID == actor.ID
}

func participantOrAdmin(actor Actor, req *models.Request) bool {
	return actor.IsAdmin() || req.IsParticipant(actor.ID)
}

func releaseItem(ctx context.Context, tx *gorm.DB, req *models.Request) error {
	return NewAvailabilityManager(repository.NewItemRepository(tx)).Release(ctx, req.ItemID, req.ID)
}

// Accept moves a pending request to accepted.
func (s *RequestService) Accept(ctx context.Context, actor Actor, id uint) (*models.Request, error) {
	return s.apply(ctx, actor, id, transition{
		event:   models.EventRequestAccepted,
		from:    []models.RequestStatus{models.RequestStatusPending},
		to:      models.RequestStatusAccepted,
		allowed: donorOrAdmin,
		effects: func(ctx context.Context, tx *gorm.DB, req *models.Request) error {
			return NewAvailabilityManager(repository.NewItemRepository(tx)).
				Advance(ctx, req.ItemID, req.ID, models.ItemStatusAccepted)
		},
	})
}

// Reject declines a pending request and frees the item.
func (s *RequestService) Reject(ctx context.Context, actor Actor, id uint, reason string) (*models.Request, error) {
	if err := validateReason(reason); err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, id, transition{
		event:   models.EventRequestRejected,
		from:    []models.RequestStatus{models.RequestStatusPending},
		to:      models.RequestStatusRejected,
		reason:  reason,
		allowed: donorOrAdmin,
		effects: releaseItem,
	})
}

// Cancel withdraws a pending or accepted request and frees the item.
func (s *RequestService) Cancel(ctx context.Context, actor Actor, id uint, reason string) (*models.Request, error) {
	if err := validateReason(reason); err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, id, transition{
		event:   models.EventRequestCancelled,
		from:    models.ActiveRequestStatuses,
		to:      models.RequestStatusCancelled,
		reason:  reason,
		allowed: participantOrAdmin,
		effects: releaseItem,
	})
}

// Complete records the hand-over of an accepted request and credits both
// participants. It succeeds at most once per request.
func (s *RequestService) Complete(ctx context.Context, actor Actor, id uint, in CompleteRequestInput) (*models.Request, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, id, transition{
		event:   models.EventRequestCompleted,
		from:    []models.RequestStatus{models.RequestStatusAccepted},
		to:      models.RequestStatusCompleted,
		allowed: participantOrAdmin,
		columns: func(actor Actor, now time.Time) map[string]interface{} {
			cols := map[string]interface{}{
				"completion_completed_at":    now,
				"completion_completed_by_id": actor.ID,
				"completion_comment":         in.Comment,
			}
			if in.Rating != nil {
				cols["completion_rating"] = *in.Rating
			}
			return cols
		},
		effects: func(ctx context.Context, tx *gorm.DB, req *models.Request) error {
			err := NewAvailabilityManager(repository.NewItemRepository(tx)).
				Advance(ctx, req.ItemID, req.ID, models.ItemStatusCompleted)
			if err != nil {
				return err
			}
			return NewStatsAggregator(repository.NewUserRepository(tx), repository.NewRequestRepository(tx)).
				OnCompleted(ctx, req)
		},
	})
}

func (s *RequestService) apply(ctx context.Context, actor Actor, id uint, t transition) (req *models.Request, err error) {
	ctx, span := observability.StartSpan(ctx, "request."+string(t.event),
		attribute.Int64("request.id", int64(id)),
		attribute.Int64("actor.id", int64(actor.ID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	current, err := s.load(ctx, id, func(req *models.Request) error {
		if !t.allowed(actor, req) {
			return models.NewForbiddenError(fmt.Sprintf("You cannot %s this request", verb(t.event)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasStatus(t.from, current.Status) {
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("Cannot %s a request that is %s", verb(t.event), current.Status))
	}

	now := s.now()
	var extra map[string]interface{}
	if t.columns != nil {
		extra = t.columns(actor, now)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := repository.NewRequestRepository(tx)
		if err := requests.CompareAndSetStatus(ctx, current.ID, current.Status, t.to, extra); err != nil {
			return err
		}
		if err := requests.AppendStatusChange(ctx, &models.StatusChange{
			RequestID:   current.ID,
			Status:      t.to,
			ChangedByID: &actor.ID,
			Reason:      t.reason,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if t.effects == nil {
			return nil
		}
		return t.effects(ctx, tx, current)
	})
	if err != nil {
		s.countConflict(t.event, err)
		return nil, err
	}

	s.committed(ctx, current, t.event, actor.ID)
	return s.detailed(ctx, current.ID, actor)
}

func verb(event models.RequestEventType) string {
	switch event {
	case models.EventRequestAccepted:
		return "accept"
	case models.EventRequestRejected:
		return "reject"
	case models.EventRequestCompleted:
		return "complete"
	case models.EventRequestCancelled:
		return "cancel"
	default:
		return string(event)
	}
}

func hasStatus(set []models.RequestStatus, status models.RequestStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// load reads a request and runs authorize against it. Only an authorized
// caller can trigger the lazy expiry of a request pending past its expiry.
func (s *RequestService) load(ctx context.Context, id uint, authorize func(*models.Request) error) (*models.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(req); err != nil {
		return nil, err
	}
	if !req.IsExpired(s.now()) {
		return req, nil
	}
	if err := s.expire(ctx, req, ExpiryTriggerLazy); err != nil && !models.IsCode(err, models.CodeConflict) {
		return nil, err
	}
	return s.requests.GetByID(ctx, id)
}

// expire cancels an overdue pending request on behalf of the system clock.
func (s *RequestService) expire(ctx context.Context, req *models.Request, trigger string) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := repository.NewRequestRepository(tx)
		if err := requests.CompareAndSetStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusCancelled, nil); err != nil {
			return err
		}
		if err := requests.AppendStatusChange(ctx, &models.StatusChange{
			RequestID: req.ID,
			Status:    models.RequestStatusCancelled,
			Reason:    models.ExpiredReason,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return releaseItem(ctx, tx, req)
	})
	if err != nil {
		return err
	}

	observability.RequestsExpired.WithLabelValues(trigger).Inc()
	s.committed(ctx, req, models.EventRequestCancelled, 0)
	return nil
}

// ExpireOverdue cancels up to limit pending requests past their expiry and
// returns how many it cancelled. Requests changed concurrently are skipped.
func (s *RequestService) ExpireOverdue(ctx context.Context, limit int, trigger string) (int, error) {
	overdue, err := s.requests.ListExpiredPending(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		err := s.expire(ctx, &overdue[i], trigger)
		switch {
		case err == nil:
			expired++
		case models.IsCode(err, models.CodeConflict):
			continue
		default:
			return expired, err
		}
	}
	return expired, nil
}

// Get returns a request visible to its participants and admins.
func (s *RequestService) Get(ctx context.Context, actor Actor, id uint) (*models.Request, error) {
	_, err := s.load(ctx, id, func(req *models.Request) error {
		if !participantOrAdmin(actor, req) {
			return models.NewForbiddenError("You are not a participant in this request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.detailed(ctx, id, actor)
}

// ListSent lists requests opened by the actor.
func (s *RequestService) ListSent(ctx context.Context, actor Actor, filter repository.RequestFilter) ([]models.Request, int64, error) {
	reqs, total, err := s.requests.ListByRequester(ctx, actor.ID, filter)
	if err != nil {
		return nil, 0, err
	}
	s.settle(ctx, reqs)
	return reqs, total, nil
}

// ListReceived lists requests for the actor's items.
func (s *RequestService) ListReceived(ctx context.Context, actor Actor, filter repository.RequestFilter) ([]models.Request, int64, error) {
	reqs, total, err := s.requests.ListByDonor(ctx, actor.ID, filter)
	if err != nil {
		return nil, 0, err
	}
	s.settle(ctx, reqs)
	return reqs, total, nil
}

// List lists all requests. Admin only.
func (s *RequestService) List(ctx context.Context, actor Actor, filter repository.RequestFilter) ([]models.Request, int64, error) {
	if !actor.IsAdmin() {
		return nil, 0, models.NewForbiddenError("Admin access required")
	}
	reqs, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	s.settle(ctx, reqs)
	return reqs, total, nil
}

// settle expires overdue entries of a listing in place and fills daysUntilExpiry.
func (s *RequestService) settle(ctx context.Context, reqs []models.Request) {
	now := s.now()
	for i := range reqs {
		if reqs[i].IsExpired(now) {
			err := s.expire(ctx, &reqs[i], ExpiryTriggerLazy)
			if err == nil || models.IsCode(err, models.CodeConflict) {
				if fresh, getErr := s.requests.GetByID(ctx, reqs[i].ID); getErr == nil {
					reqs[i].Status = fresh.Status
					reqs[i].UpdatedAt = fresh.UpdatedAt
				}
			} else {
				observability.GlobalLogger.WarnContext(ctx, "lazy expiry failed",
					slog.Uint64("request_id", uint64(reqs[i].ID)),
					slog.String("error", err.Error()),
				)
			}
		}
		reqs[i].DaysUntilExpiry = reqs[i].RemainingDays(now)
	}
}

func (s *RequestService) detailed(ctx context.Context, id uint, actor Actor) (*models.Request, error) {
	req, err := s.requests.GetDetailed(ctx, id)
	if err != nil {
		return nil, err
	}
	req.DaysUntilExpiry = req.RemainingDays(s.now())
	if req.IsParticipant(actor.ID) {
		unread, err := s.requests.UnreadCount(ctx, id, actor.ID)
		if err != nil {
			return nil, err
		}
		req.UnreadCount = unread
	}
	return req, nil
}

func (s *RequestService) committed(ctx context.Context, req *models.Request, event models.RequestEventType, actorID uint) {
	observability.RequestTransitions.WithLabelValues(string(event)).Inc()
	if event == models.EventRequestCompleted {
		s.cache.InvalidateUser(ctx, req.DonorID, req.RequesterID)
		s.cache.Invalidate(ctx, cache.LeaderboardKey(defaultLeaderboardSize))
	} else {
		s.cache.Invalidate(ctx, cache.StatsKey(req.DonorID), cache.StatsKey(req.RequesterID))
	}
	s.publisher.PublishRequestEvent(ctx, models.RequestEvent{
		RequestID:   req.ID,
		ItemID:      req.ItemID,
		Type:        event,
		ActorID:     actorID,
		RequesterID: req.RequesterID,
		DonorID:     req.DonorID,
		Timestamp:   s.now(),
	})
}

func (s *RequestService) countConflict(event models.RequestEventType, err error) {
	if models.IsCode(err, models.CodeConflict) {
		observability.RequestConflicts.WithLabelValues(string(event)).Inc()
	}
}
