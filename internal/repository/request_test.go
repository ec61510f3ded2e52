package repository

import (
	"context"
	"testing"
	"time"

	"kindkart/internal/models"
	"kindkart/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPending(t *testing.T, db *gorm.DB) (*models.Request, *models.User, *models.User) {
	t.Helper()
	donor := testutil.CreateUser(t, db, models.RoleDonor)
	requester := testutil.CreateUser(t, db, models.RoleRecipient)
	item := testutil.CreateItem(t, db, donor)

	req := &models.Request{
		ItemID:      item.ID,
		RequesterID: requester.ID,
		DonorID:     donor.ID,
		Status:      models.RequestStatusPending,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	require.NoError(t, NewRequestRepository(db).Create(context.Background(), req))
	return req, donor, requester
}

func TestRequestRepository_CompareAndSetStatus(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req, _, _ := newPending(t, db)

	require.NoError(t, repo.CompareAndSetStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusAccepted, nil))

	err := repo.CompareAndSetStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusCancelled, nil)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, got.Status)
}

func TestRequestRepository_DuplicateActiveRequestConflicts(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRequestRepository(db)
	req, donor, _ := newPending(t, db)
	other := testutil.CreateUser(t, db, models.RoleNGO)

	dup := &models.Request{
		ItemID:      req.ItemID,
		RequesterID: other.ID,
		DonorID:     donor.ID,
		Status:      models.RequestStatusPending,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	err := repo.Create(context.Background(), dup)
	assert.True(t, models.IsCode(err, models.CodeConflict))
}

func TestRequestRepository_SubLedgersKeepInsertionOrder(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req, donor, requester := newPending(t, db)

	for _, s := range []models.RequestStatus{models.RequestStatusPending, models.RequestStatusAccepted} {
		require.NoError(t, repo.AppendStatusChange(ctx, &models.StatusChange{RequestID: req.ID, Status: s, ChangedByID: &donor.ID}))
	}
	bodies := []string{"hello", "when can I pick up?", "tomorrow at 5"}
	senders := []uint{requester.ID, requester.ID, donor.ID}
	for i, body := range bodies {
		require.NoError(t, repo.BumpMessageCount(ctx, req.ID, []models.RequestStatus{models.RequestStatusCompleted}))
		require.NoError(t, repo.AppendMessage(ctx, &models.RequestMessage{RequestID: req.ID, SenderID: senders[i], Body: body}))
	}

	got, err := repo.GetDetailed(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.StatusHistory, 2)
	assert.Equal(t, models.RequestStatusAccepted, got.StatusHistory[1].Status)
	require.Len(t, got.Messages, 3)
	for i, body := range bodies {
		assert.Equal(t, body, got.Messages[i].Body)
	}
	assert.Equal(t, 3, got.MessageCount)
	require.NotNil(t, got.Item)
	require.NotNil(t, got.Requester)
	assert.Equal(t, requester.ID, got.Requester.ID)

	unread, err := repo.UnreadCount(ctx, req.ID, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	marked, err := repo.MarkMessagesRead(ctx, req.ID, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	unread, err = repo.UnreadCount(ctx, req.ID, requester.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestRequestRepository_BumpMessageCountRefusesClosed(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req, _, _ := newPending(t, db)

	require.NoError(t, repo.CompareAndSetStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusCancelled, nil))
	err := repo.BumpMessageCount(ctx, req.ID, []models.RequestStatus{models.RequestStatusCompleted, models.RequestStatusCancelled})
	assert.True(t, models.IsCode(err, models.CodeConflict))
}

func TestRequestRepository_ListExpiredPending(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req, _, _ := newPending(t, db)

	none, err := repo.ListExpiredPending(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	due, err := repo.ListExpiredPending(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, req.ID, due[0].ID)
}

func TestRequestRepository_ListingsAndCounts(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	req, donor, requester := newPending(t, db)

	sent, total, err := repo.ListByRequester(ctx, requester.ID, RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, sent, 1)
	assert.Equal(t, req.ID, sent[0].ID)

	_, total, err = repo.ListByDonor(ctx, donor.ID, RequestFilter{Status: models.RequestStatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	counts, err := repo.CountsForUser(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.ReceivedPending)
	assert.Equal(t, int64(0), counts.Sent)

	byStatus, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), byStatus[models.RequestStatusPending])
}
