package repository

import (
	"context"
	"time"

	"kindkart/internal/models"

	"gorm.io/gorm"
)

var negotiatingItemStatuses = []models.ItemStatus{models.ItemStatusRequested, models.ItemStatusAccepted}

// ItemFilter narrows the admin item listing. Zero fields match everything,
// hidden items included.
type ItemFilter struct {
	Status   models.ItemStatus
	Category string
	Visible  *bool
	Search   string
	Page     Page
}

// CategoryCount is the number of items listed in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// LocationCount is the number of items listed in one city.
type LocationCount struct {
	City  string `json:"city"`
	State string `json:"state"`
	Count int64  `json:"count"`
}

// ItemRepository defines persistence operations for items.
//
// The availability methods (Reserve, SetStatusForRequest, Release) are
// conditional updates: they report ConflictError when the row was not in the
// expected state, so two writers can never both succeed.
type ItemRepository interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	UpdateUnlessNegotiating(ctx context.Context, id uint, updates map[string]interface{}) error
	DeleteUnlessNegotiating(ctx context.Context, id uint) error
	Reserve(ctx context.Context, itemID, requestID uint, now time.Time) error
	SetStatusForRequest(ctx context.Context, itemID, requestID uint, status models.ItemStatus) error
	Release(ctx context.Context, itemID, requestID uint) error
	TransitionListing(ctx context.Context, id uint, from, to models.ItemStatus) error
	IncrementRequestCount(ctx context.Context, id uint) error
	IncrementViewCount(ctx context.Context, id uint) error
	SetVisibility(ctx context.Context, id uint, visible bool) error
	ListAvailable(ctx context.Context, page Page) ([]models.Item, int64, error)
	ListByDonor(ctx context.Context, donorID uint, includeHidden bool, page Page) ([]models.Item, int64, error)
	CountByDonor(ctx context.Context, donorID uint) (int64, error)
	CountNegotiatingByDonor(ctx context.Context, donorID uint) (int64, error)
	CountByStatus(ctx context.Context) (map[models.ItemStatus]int64, error)
	List(ctx context.Context, filter ItemFilter) ([]models.Item, int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountByCategory(ctx context.Context, since time.Time) ([]CategoryCount, error)
	TopLocations(ctx context.Context, since time.Time, limit int) ([]LocationCount, error)
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository returns a new ItemRepository implementation.
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	return classify(r.db.WithContext(ctx).Omit("Donor").Create(item).Error, "Item", item.Title)
}

func (r *itemRepository) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Preload("Donor").First(&item, id).Error; err != nil {
		return nil, classify(err, "Item", id)
	}
	return &item, nil
}

// exists distinguishes "missing" from "in the wrong state" after a conditional update matched nothing.
func (r *itemRepository) exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, classify(err, "Item", id)
	}
	return count > 0, nil
}

func (r *itemRepository) conditional(ctx context.Context, id uint, res *gorm.DB, conflict string) error {
	if res.Error != nil {
		return classify(res.Error, "Item", id)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	ok, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFoundError("Item", id)
	}
	return models.NewConflictError(conflict)
}

func (r *itemRepository) UpdateUnlessNegotiating(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND status NOT IN ?", id, negotiatingItemStatuses).
		Updates(updates)
	return r.conditional(ctx, id, res, "Item cannot be modified while a request is active")
}

func (r *itemRepository) DeleteUnlessNegotiating(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status NOT IN ?", id, negotiatingItemStatuses).
		Delete(&models.Item{})
	return r.conditional(ctx, id, res, "Item cannot be deleted while a request is active")
}

// Reserve holds an item for requestID. The item must still be requestable at
// now: available, unheld, visible and unexpired.
func (r *itemRepository) Reserve(ctx context.Context, itemID, requestID uint, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND status = ? AND current_request_id IS NULL", itemID, models.ItemStatusAvailable).
		Where("is_visible = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Updates(map[string]interface{}{
			"status":             models.ItemStatusRequested,
			"current_request_id": requestID,
		})
	return r.conditional(ctx, itemID, res, "Item is no longer available")
}

func (r *itemRepository) SetStatusForRequest(ctx context.Context, itemID, requestID uint, status models.ItemStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND current_request_id = ? AND status IN ?", itemID, requestID, negotiatingItemStatuses).
		Update("status", status)
	return r.conditional(ctx, itemID, res, "Item is not held by this request")
}

func (r *itemRepository) Release(ctx context.Context, itemID, requestID uint) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND current_request_id = ? AND status IN ?", itemID, requestID, negotiatingItemStatuses).
		Updates(map[string]interface{}{
			"status":             models.ItemStatusAvailable,
			"current_request_id": nil,
		})
	return r.conditional(ctx, itemID, res, "Item is not held by this request")
}

func (r *itemRepository) TransitionListing(ctx context.Context, id uint, from, to models.ItemStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND status = ? AND current_request_id IS NULL", id, from).
		Update("status", to)
	return r.conditional(ctx, id, res, "Item is not "+string(from))
}

func (r *itemRepository) IncrementRequestCount(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).
		UpdateColumn("request_count", gorm.Expr("request_count + 1"))
	return r.conditional(ctx, id, res, "Item request count not updated")
}

func (r *itemRepository) IncrementViewCount(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	return r.conditional(ctx, id, res, "Item view count not updated")
}

func (r *itemRepository) SetVisibility(ctx context.Context, id uint, visible bool) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).Update("is_visible", visible)
	return r.conditional(ctx, id, res, "Item visibility not updated")
}

func (r *itemRepository) ListAvailable(ctx context.Context, page Page) ([]models.Item, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Item{}).
		Where("status = ? AND is_visible = ?", models.ItemStatusAvailable, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now())
	return r.list(q, page)
}

func (r *itemRepository) ListByDonor(ctx context.Context, donorID uint, includeHidden bool, page Page) ([]models.Item, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Item{}).Where("donor_id = ?", donorID)
	if !includeHidden {
		q = q.Where("is_visible = ?", true)
	}
	return r.list(q, page)
}

// List returns items across all donors, matching Search against title and description.
func (r *itemRepository) List(ctx context.Context, filter ItemFilter) ([]models.Item, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Item{}).
		Scopes(searchScope(filter.Search, "title", "description"))
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Visible != nil {
		q = q.Where("is_visible = ?", *filter.Visible)
	}
	return r.list(q, filter.Page)
}

func (r *itemRepository) list(q *gorm.DB, page Page) ([]models.Item, int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, classify(err, "Item", "list")
	}
	var items []models.Item
	if err := q.Preload("Donor").Order("created_at DESC").Order("id DESC").Scopes(paginate(page)).Find(&items).Error; err != nil {
		return nil, 0, classify(err, "Item", "list")
	}
	return items, total, nil
}

func (r *itemRepository) CountByDonor(ctx context.Context, donorID uint) (int64, error) {
	var count int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Item{}).
		Where("donor_id = ? AND is_visible = ?", donorID, true).
		Count(&count).Error
	return count, classify(err, "Item", "count")
}

func (r *itemRepository) CountNegotiatingByDonor(ctx context.Context, donorID uint) (int64, error) {
	var count int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Item{}).
		Where("donor_id = ? AND status IN ?", donorID, negotiatingItemStatuses).
		Count(&count).Error
	return count, classify(err, "Item", "count")
}

func (r *itemRepository) CountByStatus(ctx context.Context) (map[models.ItemStatus]int64, error) {
	var rows []struct {
		Status models.ItemStatus
		Count  int64
	}
	err := readDB(r.db).WithContext(ctx).Model(&models.Item{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err, "Item", "counts")
	}
	out := make(map[models.ItemStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *itemRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Item{}).Scopes(createdSince(since)).Count(&count).Error
	return count, classify(err, "Item", "count")
}

// CountByCategory counts items listed since, largest category first.
func (r *itemRepository) CountByCategory(ctx context.Context, since time.Time) ([]CategoryCount, error) {
	var rows []CategoryCount
	err := readDB(r.db).WithContext(ctx).Model(&models.Item{}).
		Scopes(createdSince(since)).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC").Order("category ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err, "Item", "categories")
	}
	return rows, nil
}

// TopLocations counts items listed since per city, busiest first.
func (r *itemRepository) TopLocations(ctx context.Context, since time.Time, limit int) ([]LocationCount, error) {
	var rows []LocationCount
	err := readDB(r.db).WithContext(ctx).Model(&models.Item{}).
		Scopes(createdSince(since)).
		Where("location_city <> ?", "").
		Select("location_city AS city, location_state AS state, COUNT(*) AS count").
		Group("location_city, location_state").
		Order("count DESC").Order("city ASC").
		Limit(Page{Limit: limit}.Normalize().Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err, "Item", "locations")
	}
	return rows, nil
}
