package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"kindkart/internal/cache"
	"kindkart/internal/config"
	"kindkart/internal/database"
	"kindkart/internal/models"
	"kindkart/internal/observability"
	"kindkart/internal/repository"
	"kindkart/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty database with demo users, items and requests.
	SeedDemo bool
}

// InitRuntime connects to DB and Redis and optionally seeds demo data.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := Prepare(ctx, cfg, db, opts); err != nil {
		return nil, nil, err
	}
	return db, r, nil
}

// Prepare runs the post-connect steps of InitRuntime against an open database.
func Prepare(ctx context.Context, cfg *config.Config, db *gorm.DB, opts Options) error {
	if err := ensureDevAdmin(ctx, cfg, db); err != nil {
		return fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedDemo {
		if err := seedIfEmpty(ctx, db); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
	}
	return nil
}

func ensureDevAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	email := strings.TrimSpace(strings.ToLower(cfg.DevAdminEmail))
	if !strings.EqualFold(cfg.Env, "development") || email == "" {
		return nil
	}
	if cfg.DevAdminPassword == "" {
		return fmt.Errorf("DEV_ADMIN_PASSWORD must be set when DEV_ADMIN_EMAIL is")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.DevAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := repository.NewUserRepository(tx)
		existing, err := users.GetByEmail(ctx, email)
		switch {
		case models.IsCode(err, models.CodeNotFound):
			return users.Create(ctx, &models.User{
				Name:         "Development Admin",
				Email:        email,
				PasswordHash: string(hashedPassword),
				Role:         models.RoleAdmin,
				IsVerified:   true,
			})
		case err != nil:
			return err
		}
		if err := users.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		return users.SetVerified(ctx, existing.ID, true)
	})
	if err != nil {
		return err
	}

	observability.GlobalLogger.InfoContext(ctx, "development admin ensured", slog.String("email", email))
	return nil
}

func seedIfEmpty(ctx context.Context, db *gorm.DB) error {
	var items int64
	if err := db.WithContext(ctx).Model(&models.Item{}).Count(&items).Error; err != nil {
		return err
	}
	if items > 0 {
		return nil
	}
	_, err := seed.NewSeeder(db, seed.DefaultOptions()).Run(ctx)
	return err
}
