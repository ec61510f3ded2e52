package repository

import (
	"context"
	"time"

	"kindkart/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter narrows request listings.
type RequestFilter struct {
	Status models.RequestStatus
	Page   Page
}

// RequestCounts summarises one user's requests.
type RequestCounts struct {
	Sent            int64
	SentPending     int64
	ReceivedPending int64
}

// RequestRepository defines persistence operations for requests and their
// status history and message sub-ledgers. The sub-ledgers are append-only.
type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id uint) (*models.Request, error)
	GetDetailed(ctx context.Context, id uint) (*models.Request, error)
	HasActive(ctx context.Context, itemID, requesterID uint) (bool, error)
	CompareAndSetStatus(ctx context.Context, id uint, from, to models.RequestStatus, extra map[string]interface{}) error
	AppendStatusChange(ctx context.Context, change *models.StatusChange) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Request, error)
	ListByRequester(ctx context.Context, requesterID uint, filter RequestFilter) ([]models.Request, int64, error)
	ListByDonor(ctx context.Context, donorID uint, filter RequestFilter) ([]models.Request, int64, error)
	List(ctx context.Context, filter RequestFilter) ([]models.Request, int64, error)
	CountByStatus(ctx context.Context) (map[models.RequestStatus]int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountsForUser(ctx context.Context, userID uint) (*RequestCounts, error)
	CountCompleted(ctx context.Context, userID uint) (asDonor, asRequester int64, err error)
	BumpMessageCount(ctx context.Context, id uint, closed []models.RequestStatus) error
	AppendMessage(ctx context.Context, msg *models.RequestMessage) error
	MarkMessagesRead(ctx context.Context, requestID, readerID uint) (int64, error)
	UnreadCount(ctx context.Context, requestID, userID uint) (int64, error)
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository returns a new RequestRepository implementation.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *models.Request) error {
	return classify(r.db.WithContext(ctx).Omit(clause.Associations).Create(req).Error, "Request", req.ItemID)
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	var req models.Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, classify(err, "Request", id)
	}
	return &req, nil
}

func byInsertion(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// GetDetailed loads the request with its item, participants and both sub-ledgers in insertion order.
func (r *requestRepository) GetDetailed(ctx context.Context, id uint) (*models.Request, error) {
	var req models.Request
	err := r.db.WithContext(ctx).
		Preload("Item").
		Preload("Requester").
		Preload("Donor").
		Preload("StatusHistory", byInsertion).
		Preload("Messages", byInsertion).
		First(&req, id).Error
	if err != nil {
		return nil, classify(err, "Request", id)
	}
	return &req, nil
}

func (r *requestRepository) HasActive(ctx context.Context, itemID, requesterID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("item_id = ? AND requester_id = ? AND status IN ?", itemID, requesterID, models.ActiveRequestStatuses).
		Count(&count).Error
	if err != nil {
		return false, classify(err, "Request", itemID)
	}
	return count > 0, nil
}

// CompareAndSetStatus moves the request from `from` to `to` only if it is
// still in `from`. A concurrent writer that already moved it yields ConflictError.
func (r *requestRepository) CompareAndSetStatus(ctx context.Context, id uint, from, to models.RequestStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return classify(res.Error, "Request", id)
	}
	if res.RowsAffected == 0 {
		return models.NewConflictError("Request was changed by another operation")
	}
	return nil
}

func (r *requestRepository) AppendStatusChange(ctx context.Context, change *models.StatusChange) error {
	return classify(r.db.WithContext(ctx).Create(change).Error, "Request", change.RequestID)
}

func (r *requestRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Request, error) {
	var reqs []models.Request
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.RequestStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, classify(err, "Request", "expired")
	}
	return reqs, nil
}

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID uint, filter RequestFilter) ([]models.Request, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Request{}).Where("requester_id = ?", requesterID)
	return r.list(q, filter)
}

func (r *requestRepository) ListByDonor(ctx context.Context, donorID uint, filter RequestFilter) ([]models.Request, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Request{}).Where("donor_id = ?", donorID)
	return r.list(q, filter)
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]models.Request, int64, error) {
	return r.list(readDB(r.db).WithContext(ctx).Model(&models.Request{}), filter)
}

func (r *requestRepository) list(q *gorm.DB, filter RequestFilter) ([]models.Request, int64, error) {
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, classify(err, "Request", "list")
	}

	var reqs []models.Request
	err := q.Preload("Item").Preload("Requester").Preload("Donor").
		Order("created_at DESC").Order("id DESC").
		Scopes(paginate(filter.Page)).
		Find(&reqs).Error
	if err != nil {
		return nil, 0, classify(err, "Request", "list")
	}
	return reqs, total, nil
}

func (r *requestRepository) CountByStatus(ctx context.Context) (map[models.RequestStatus]int64, error) {
	var rows []struct {
		Status models.RequestStatus
		Count  int64
	}
	err := readDB(r.db).WithContext(ctx).Model(&models.Request{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err, "Request", "counts")
	}
	out := make(map[models.RequestStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *requestRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Request{}).Scopes(createdSince(since)).Count(&count).Error
	return count, classify(err, "Request", "count")
}

func (r *requestRepository) CountsForUser(ctx context.Context, userID uint) (*RequestCounts, error) {
	db := readDB(r.db).WithContext(ctx)
	var counts RequestCounts
	if err := db.Model(&models.Request{}).Where("requester_id = ?", userID).Count(&counts.Sent).Error; err != nil {
		return nil, classify(err, "Request", "counts")
	}
	if err := db.Model(&models.Request{}).
		Where("requester_id = ? AND status = ?", userID, models.RequestStatusPending).
		Count(&counts.SentPending).Error; err != nil {
		return nil, classify(err, "Request", "counts")
	}
	if err := db.Model(&models.Request{}).
		Where("donor_id = ? AND status = ?", userID, models.RequestStatusPending).
		Count(&counts.ReceivedPending).Error; err != nil {
		return nil, classify(err, "Request", "counts")
	}
	return &counts, nil
}

// CountCompleted reads from the primary so reconciliation sees committed completions.
func (r *requestRepository) CountCompleted(ctx context.Context, userID uint) (int64, int64, error) {
	var asDonor, asRequester int64
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Request{}).
		Where("donor_id = ? AND status = ?", userID, models.RequestStatusCompleted).
		Count(&asDonor).Error; err != nil {
		return 0, 0, classify(err, "Request", "counts")
	}
	if err := db.Model(&models.Request{}).
		Where("requester_id = ? AND status = ?", userID, models.RequestStatusCompleted).
		Count(&asRequester).Error; err != nil {
		return 0, 0, classify(err, "Request", "counts")
	}
	return asDonor, asRequester, nil
}

// BumpMessageCount increments message_count unless the request is in one of
// the closed statuses. It serialises message appends with status transitions
// on the same row.
func (r *requestRepository) BumpMessageCount(ctx context.Context, id uint, closed []models.RequestStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status NOT IN ?", id, closed).
		UpdateColumn("message_count", gorm.Expr("message_count + 1"))
	if res.Error != nil {
		return classify(res.Error, "Request", id)
	}
	if res.RowsAffected == 0 {
		return models.NewConflictError("Request was changed by another operation")
	}
	return nil
}

func (r *requestRepository) AppendMessage(ctx context.Context, msg *models.RequestMessage) error {
	return classify(r.db.WithContext(ctx).Create(msg).Error, "Request", msg.RequestID)
}

func (r *requestRepository) MarkMessagesRead(ctx context.Context, requestID, readerID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.RequestMessage{}).
		Where("request_id = ? AND sender_id <> ? AND is_read = ?", requestID, readerID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, classify(res.Error, "Request", requestID)
	}
	return res.RowsAffected, nil
}

func (r *requestRepository) UnreadCount(ctx context.Context, requestID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RequestMessage{}).
		Where("request_id = ? AND sender_id <> ? AND is_read = ?", requestID, userID, false).
		Count(&count).Error
	return count, classify(err, "Request", requestID)
}
