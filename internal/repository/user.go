package repository

import (
	"context"
	"time"

	"kindkart/internal/models"

	"gorm.io/gorm"
)

// UserFilter narrows the admin user listing. Zero fields match everything.
type UserFilter struct {
	Role    models.Role
	Blocked *bool
	Search  string
	Page    Page
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	IncrementStats(ctx context.Context, id uint, delta models.UserStats) error
	SetStats(ctx context.Context, id uint, stats models.UserStats) error
	SetBlocked(ctx context.Context, id uint, blocked bool) error
	SetVerified(ctx context.Context, id uint, verified bool) error
	SetRole(ctx context.Context, id uint, role models.Role) error
	TopDonors(ctx context.Context, limit int) ([]models.User, error)
	CountByRole(ctx context.Context) (map[models.Role]int64, error)
	List(ctx context.Context, filter UserFilter) ([]models.User, int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return classify(r.db.WithContext(ctx).Create(user).Error, "User", user.Email)
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, classify(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, classify(err, "User", email)
	}
	return &user, nil
}

// IncrementStats adds delta to the user's counters in a single UPDATE.
func (r *userRepository) IncrementStats(ctx context.Context, id uint, delta models.UserStats) error {
	updates := map[string]interface{}{}
	if delta.ItemsDonated != 0 {
		updates["stats_items_donated"] = gorm.Expr("stats_items_donated + ?", delta.ItemsDonated)
	}
	if delta.ItemsReceived != 0 {
		updates["stats_items_received"] = gorm.Expr("stats_items_received + ?", delta.ItemsReceived)
	}
	if delta.TotalImpact != 0 {
		updates["stats_total_impact"] = gorm.Expr("stats_total_impact + ?", delta.TotalImpact)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.updateOne(ctx, id, updates)
}

func (r *userRepository) SetStats(ctx context.Context, id uint, stats models.UserStats) error {
	return r.updateOne(ctx, id, map[string]interface{}{
		"stats_items_donated":  stats.ItemsDonated,
		"stats_items_received": stats.ItemsReceived,
		"stats_total_impact":   stats.TotalImpact,
	})
}

func (r *userRepository) SetBlocked(ctx context.Context, id uint, blocked bool) error {
	return r.updateOne(ctx, id, map[string]interface{}{"is_blocked": blocked})
}

func (r *userRepository) SetVerified(ctx context.Context, id uint, verified bool) error {
	return r.updateOne(ctx, id, map[string]interface{}{"is_verified": verified})
}

func (r *userRepository) SetRole(ctx context.Context, id uint, role models.Role) error {
	return r.updateOne(ctx, id, map[string]interface{}{"role": role})
}

func (r *userRepository) updateOne(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return classify(res.Error, "User", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *userRepository) TopDonors(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := readDB(r.db).WithContext(ctx).
		Where("is_blocked = ? AND stats_items_donated > 0", false).
		Order("stats_items_donated DESC").
		Order("id ASC").
		Limit(Page{Limit: limit}.Normalize().Limit).
		Find(&users).Error
	if err != nil {
		return nil, classify(err, "User", "leaderboard")
	}
	return users, nil
}

func (r *userRepository) CountByRole(ctx context.Context) (map[models.Role]int64, error) {
	var rows []struct {
		Role  models.Role
		Count int64
	}
	err := readDB(r.db).WithContext(ctx).Model(&models.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err, "User", "counts")
	}
	out := make(map[models.Role]int64, len(rows))
	for _, row := range rows {
		out[row.Role] = row.Count
	}
	return out, nil
}

// List returns users newest first, matching Search against name and email.
func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.User{}).
		Scopes(searchScope(filter.Search, "name", "email"))
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.Blocked != nil {
		q = q.Where("is_blocked = ?", *filter.Blocked)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, classify(err, "User", "list")
	}
	var users []models.User
	err := q.Order("created_at DESC").Order("id DESC").Scopes(paginate(filter.Page)).Find(&users).Error
	if err != nil {
		return nil, 0, classify(err, "User", "list")
	}
	return users, total, nil
}

func (r *userRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := readDB(r.db).WithContext(ctx).Model(&models.User{}).Scopes(createdSince(since)).Count(&count).Error
	return count, classify(err, "User", "count")
}
