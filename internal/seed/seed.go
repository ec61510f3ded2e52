package seed

import (
	"context"
	"fmt"
	"log/slog"

	"kindkart/internal/models"
	"kindkart/internal/observability"
	"kindkart/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	Donors        int
	Recipients    int
	NGOs          int
	ItemsPerDonor int
	// Requests is how many requests are driven through the lifecycle.
	Requests   int
	Admins     []Account
	BcryptCost int
}

// Account is a fixed login created alongside the generated users.
type Account struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// DefaultOptions is a small marketplace suitable for local development.
func DefaultOptions() Options {
	return Options{Donors: 8, Recipients: 12, NGOs: 3, ItemsPerDonor: 4, Requests: 20}
}

func (o Options) withDefaults() Options {
	if o.BcryptCost == 0 {
		o.BcryptCost = bcrypt.DefaultCost
	}
	return o
}

// Summary reports what a seeding run created.
type Summary struct {
	Users    int
	Items    int
	Requests map[models.RequestStatus]int
}

// Seeder populates the database. Requests are created through the lifecycle
// services so items, history and stats stay consistent.
type Seeder struct {
	db            *gorm.DB
	opts          Options
	factory       *Factory
	requests      *service.RequestService
	conversations *service.ConversationService
}

// NewSeeder returns a Seeder over db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	requests := service.NewRequestService(db)
	return &Seeder{
		db:            db,
		opts:          opts.withDefaults(),
		factory:       NewFactory(db, opts),
		requests:      requests,
		conversations: service.NewConversationService(db, requests, nil),
	}
}

// ClearAll removes all marketplace rows, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tx := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []interface{}{
		&models.RequestMessage{},
		&models.StatusChange{},
		&models.Request{},
		&models.Item{},
		&models.User{},
	} {
		if err := tx.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Run creates users and items, then drives requests into a mix of states.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Requests: map[models.RequestStatus]int{}}

	for _, acct := range s.opts.Admins {
		acct := acct
		if _, err := s.factory.CreateUser(models.RoleAdmin, func(u *models.User) {
			u.Name = acct.Name
			u.Email = acct.Email
			u.IsVerified = true
		}); err != nil {
			return nil, fmt.Errorf("create admin %s: %w", acct.Email, err)
		}
		summary.Users++
	}

	donors, err := s.users(models.RoleDonor, s.opts.Donors)
	if err != nil {
		return nil, err
	}
	recipients, err := s.users(models.RoleRecipient, s.opts.Recipients)
	if err != nil {
		return nil, err
	}
	ngos, err := s.users(models.RoleNGO, s.opts.NGOs)
	if err != nil {
		return nil, err
	}
	requesters := append(recipients, ngos...)
	summary.Users += len(donors) + len(requesters)

	var items []*models.Item
	for _, donor := range donors {
		for i := 0; i < s.opts.ItemsPerDonor; i++ {
			item, err := s.factory.CreateItem(donor)
			if err != nil {
				return nil, fmt.Errorf("create item: %w", err)
			}
			items = append(items, item)
		}
	}
	summary.Items = len(items)

	if len(requesters) == 0 {
		return summary, nil
	}

	// Each item receives at most one request, so none is ever contended.
	n := s.opts.Requests
	if n > len(items) {
		n = len(items)
	}
	for i := 0; i < n; i++ {
		requester := requesters[gofakeit.Number(0, len(requesters)-1)]
		status, err := s.drive(ctx, requester, items[i], i)
		if err != nil {
			return nil, err
		}
		summary.Requests[status]++
	}

	observability.GlobalLogger.InfoContext(ctx, "seed complete",
		slog.Int("users", summary.Users),
		slog.Int("items", summary.Items),
		slog.Int("requests", n),
	)
	return summary, nil
}

func (s *Seeder) users(role models.Role, count int) ([]*models.User, error) {
	out := make([]*models.User, 0, count)
	for i := 0; i < count; i++ {
		u, err := s.factory.CreateUser(role)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", role, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// drive opens a request and walks it to one of five outcomes chosen by i.
func (s *Seeder) drive(ctx context.Context, requester *models.User, item *models.Item, i int) (models.RequestStatus, error) {
	asker := service.ActorFor(requester)
	donor := service.Actor{ID: item.DonorID, Role: models.RoleDonor}

	req, err := s.requests.Create(ctx, asker, service.CreateRequestInput{
		ItemID:  item.ID,
		Message: gofakeit.Sentence(12),
		Pickup: models.PickupDetails{
			PreferredTime: gofakeit.RandomString([]string{"morning", "afternoon", "evening"}),
			Address:       requester.Location.Address,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	switch i % 5 {
	case 0:
		return models.RequestStatusPending, nil
	case 1:
		_, err = s.requests.Reject(ctx, donor, req.ID, "Already promised to someone else")
		return models.RequestStatusRejected, wrapStep("reject", err)
	case 2:
		_, err = s.requests.Cancel(ctx, asker, req.ID, "No longer needed")
		return models.RequestStatusCancelled, wrapStep("cancel", err)
	}

	if _, err := s.requests.Accept(ctx, donor, req.ID); err != nil {
		return "", wrapStep("accept", err)
	}
	if _, err := s.conversations.Post(ctx, asker, req.ID, "Thank you! When is a good time to pick it up?"); err != nil {
		return "", wrapStep("message", err)
	}
	if _, err := s.conversations.Post(ctx, donor, req.ID, "Any weekday after 5pm works."); err != nil {
		return "", wrapStep("message", err)
	}
	if i%5 == 3 {
		return models.RequestStatusAccepted, nil
	}

	rating := gofakeit.Number(3, 5)
	_, err = s.requests.Complete(ctx, asker, req.ID, service.CompleteRequestInput{
		Rating:  &rating,
		Comment: gofakeit.Sentence(8),
	})
	return models.RequestStatusCompleted, wrapStep("complete", err)
}

func wrapStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s request: %w", step, err)
}
