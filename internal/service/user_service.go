package service

import (
	"context"
	"fmt"
	"time"

	"kindkart/internal/cache"
	"kindkart/internal/models"
	"kindkart/internal/repository"
)

const defaultLeaderboardSize = 10

// UserService provides profiles, statistics and moderation.
type UserService struct {
	users    repository.UserRepository
	items    repository.ItemRepository
	requests repository.RequestRepository
	stats    *StatsAggregator
	cache    *cache.Aside
	cacheTTL time.Duration
	now      Clock
}

// NewUserService returns a new UserService.
func NewUserService(
	users repository.UserRepository,
	items repository.ItemRepository,
	requests repository.RequestRepository,
	aside *cache.Aside,
	cacheTTL time.Duration,
) *UserService {
	return &UserService{
		users:    users,
		items:    items,
		requests: requests,
		stats:    NewStatsAggregator(users, requests),
		cache:    aside,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Dashboard holds marketplace-wide counts for admins.
type Dashboard struct {
	UsersByRole      map[models.Role]int64          `json:"users_by_role"`
	ItemsByStatus    map[models.ItemStatus]int64    `json:"items_by_status"`
	RequestsByStatus map[models.RequestStatus]int64 `json:"requests_by_status"`
}

// Analytics periods and how far back each one reaches. "all" has no window.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodAll   = "all"
)

var periodWindows = map[string]time.Duration{
	PeriodDay:   24 * time.Hour,
	PeriodWeek:  7 * 24 * time.Hour,
	PeriodMonth: 30 * 24 * time.Hour,
	PeriodAll:   0,
}

// GrowthCount compares what was created in a period with the running total.
type GrowthCount struct {
	New       int64 `json:"new"`
	Total     int64 `json:"total"`
	Completed int64 `json:"completed,omitempty"`
}

// Analytics reports marketplace growth over a period.
type Analytics struct {
	Period     string                     `json:"period"`
	Since      *time.Time                 `json:"since,omitempty"`
	Users      GrowthCount                `json:"users"`
	Items      GrowthCount                `json:"items"`
	Requests   GrowthCount                `json:"requests"`
	Categories []repository.CategoryCount `json:"category_stats"`
	Locations  []repository.LocationCount `json:"location_stats"`
}

const topLocations = 10

// Principal resolves the authenticated user for an API call. Blocked users are refused.
func (s *UserService) Principal(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("Unknown user")
		}
		return nil, err
	}
	if user.IsBlocked {
		return nil, models.NewForbiddenError("Account is blocked")
	}
	return user, nil
}

// Profile returns the public view of a user.
func (s *UserService) Profile(ctx context.Context, id uint) (*models.PublicProfile, error) {
	var profile models.PublicProfile
	err := s.cache.Fetch(ctx, cache.ProfileKey(id), &profile, s.cacheTTL, func() error {
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		count, err := s.items.CountByDonor(ctx, id)
		if err != nil {
			return err
		}
		user.Email = ""
		user.Phone = ""
		profile = models.PublicProfile{User: *user, ItemsCount: count}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Me returns the caller's own profile, contact details included.
func (s *UserService) Me(ctx context.Context, actor Actor) (*models.User, error) {
	return s.users.GetByID(ctx, actor.ID)
}

// Activity returns a user's statistics and request counts to the user or an admin.
func (s *UserService) Activity(ctx context.Context, actor Actor, id uint) (*models.UserActivity, error) {
	if actor.ID != id && !actor.IsAdmin() {
		return nil, models.NewForbiddenError("You can only view your own statistics")
	}

	var activity models.UserActivity
	err := s.cache.Fetch(ctx, cache.StatsKey(id), &activity, s.cacheTTL, func() error {
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		counts, err := s.requests.CountsForUser(ctx, id)
		if err != nil {
			return err
		}
		active, err := s.items.CountNegotiatingByDonor(ctx, id)
		if err != nil {
			return err
		}
		activity = models.UserActivity{
			UserStats:       user.Stats,
			TotalRequests:   counts.Sent,
			PendingRequests: counts.SentPending,
			ReceivedPending: counts.ReceivedPending,
			ActiveItems:     active,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// Leaderboard lists the top donors by items donated. The default size is cached.
func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	load := func() ([]models.User, error) {
		users, err := s.users.TopDonors(ctx, limit)
		if err != nil {
			return nil, err
		}
		for i := range users {
			users[i].Email = ""
			users[i].Phone = ""
		}
		return users, nil
	}
	if limit != defaultLeaderboardSize {
		return load()
	}

	var users []models.User
	err := s.cache.Fetch(ctx, cache.LeaderboardKey(limit), &users, s.cacheTTL, func() error {
		var err error
		users, err = load()
		return err
	})
	return users, err
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return models.NewForbiddenError("Admin access required")
	}
	return nil
}

// SetBlocked blocks or unblocks a user. Admins cannot be blocked.
func (s *UserService) SetBlocked(ctx context.Context, actor Actor, id uint, blocked bool) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if blocked && target.IsAdmin() {
		return nil, models.NewForbiddenError("Admins cannot be blocked")
	}
	if err := s.users.SetBlocked(ctx, id, blocked); err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(ctx, id)
	s.cache.Invalidate(ctx, cache.LeaderboardKey(defaultLeaderboardSize))
	return s.users.GetByID(ctx, id)
}

// Verify marks a user as verified.
func (s *UserService) Verify(ctx context.Context, actor Actor, id uint) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.users.SetVerified(ctx, id, true); err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(ctx, id)
	return s.users.GetByID(ctx, id)
}

// SetRole changes a user's role.
func (s *UserService) SetRole(ctx context.Context, actor Actor, id uint, role models.Role) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, models.NewValidationError("role must be one of donor, recipient, ngo, admin")
	}
	if err := s.users.SetRole(ctx, id, role); err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(ctx, id)
	return s.users.GetByID(ctx, id)
}

// ReconcileStats recomputes a user's counters from their completed requests.
func (s *UserService) ReconcileStats(ctx context.Context, actor Actor, id uint) (*models.UserStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stats, err := s.stats.Reconcile(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(ctx, id)
	s.cache.Invalidate(ctx, cache.LeaderboardKey(defaultLeaderboardSize))
	return stats, nil
}

// Dashboard returns marketplace-wide counts.
func (s *UserService) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.items.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	requests, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{UsersByRole: users, ItemsByStatus: items, RequestsByStatus: requests}, nil
}

// ListUsers lists users newest first. Admin only.
func (s *UserService) ListUsers(ctx context.Context, actor Actor, filter repository.UserFilter) ([]models.User, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, models.NewValidationError("role must be one of donor, recipient, ngo, admin")
	}
	return s.users.List(ctx, filter)
}

// Analytics counts what was created in period against the totals, and breaks
// the period's new items down by category and city. An empty period means month.
func (s *UserService) Analytics(ctx context.Context, actor Actor, period string) (*Analytics, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if period == "" {
		period = PeriodMonth
	}
	window, ok := periodWindows[period]
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("period must be one of %s, %s, %s, %s",
			PeriodDay, PeriodWeek, PeriodMonth, PeriodAll))
	}

	out := &Analytics{Period: period}
	var since time.Time
	if window > 0 {
		since = s.now().Add(-window)
		out.Since = &since
	}

	var err error
	if out.Users, err = growth(ctx, since, s.users.CountCreatedSince); err != nil {
		return nil, err
	}
	if out.Items, err = growth(ctx, since, s.items.CountCreatedSince); err != nil {
		return nil, err
	}
	if out.Requests, err = growth(ctx, since, s.requests.CountCreatedSince); err != nil {
		return nil, err
	}

	items, err := s.items.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out.Items.Completed = items[models.ItemStatusCompleted]
	requests, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out.Requests.Completed = requests[models.RequestStatusCompleted]

	if out.Categories, err = s.items.CountByCategory(ctx, since); err != nil {
		return nil, err
	}
	if out.Locations, err = s.items.TopLocations(ctx, since, topLocations); err != nil {
		return nil, err
	}
	return out, nil
}

func growth(ctx context.Context, since time.Time, count func(context.Context, time.Time) (int64, error)) (GrowthCount, error) {
	created, err := count(ctx, since)
	if err != nil {
		return GrowthCount{}, err
	}
	total := created
	if !since.IsZero() {
		if total, err = count(ctx, time.Time{}); err != nil {
			return GrowthCount{}, err
		}
	}
	return GrowthCount{New: created, Total: total}, nil
}
