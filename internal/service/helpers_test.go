package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"kindkart/internal/models"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RequestEvent
}

func (p *recordingPublisher) PublishRequestEvent(_ context.Context, event models.RequestEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []models.RequestEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RequestEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db        *gorm.DB
	clock     *fakeClock
	publisher *recordingPublisher
	requests  *RequestService
	donor     *models.User
	requester *models.User
	item      *models.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	clock := newFakeClock()
	pub := &recordingPublisher{}
	donor := testutil.CreateUser(t, db, models.RoleDonor)
	return &fixture{
		db:        db,
		clock:     clock,
		publisher: pub,
		requests:  NewRequestService(db, WithPublisher(pub), WithClock(clock.Now)),
		donor:     donor,
		requester: testutil.CreateUser(t, db, models.RoleRecipient),
		item:      testutil.CreateItem(t, db, donor),
	}
}

func (f *fixture) open(t *testing.T, requester *models.User) *models.Request {
	t.Helper()
	req, err := f.requests.Create(context.Background(), ActorFor(requester), CreateRequestInput{
		ItemID:  f.item.ID,
		Message: "I could really use this",
	})
	require.NoError(t, err)
	return req
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, models.ErrorCode(err), err.Error())
}

// assertItemInvariants checks every item's availability against its requests.
// Listings withdrawn by their donor hold no request and are not available.
func assertItemInvariants(t *testing.T, db *gorm.DB) {
	t.Helper()
	var items []models.Item
	require.NoError(t, db.Find(&items).Error)
	for _, item := range items {
		var active []models.Request
		require.NoError(t, db.Where("item_id = ? AND status IN ?", item.ID, models.ActiveRequestStatuses).Find(&active).Error)
		assert.LessOrEqual(t, len(active), 1, "item %d has more than one active request", item.ID)

		if item.Status != models.ItemStatusCancelled {
			assert.Equal(t, item.Status == models.ItemStatusAvailable, item.CurrentRequestID == nil,
				"item %d: status %s with current request %v", item.ID, item.Status, item.CurrentRequestID)
		}
		if item.Status.UnderNegotiation() {
			require.Len(t, active, 1, "item %d is %s without an active request", item.ID, item.Status)
			assert.Equal(t, active[0].ID, *item.CurrentRequestID)
		}
	}
}
