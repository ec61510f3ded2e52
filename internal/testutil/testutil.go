// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"kindkart/internal/database"
	"kindkart/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// JWT settings shared by handler tests.
const (
	JWTSecret   = "test-secret-key-12345678901234567890123456789012"
	JWTIssuer   = "kindkart-auth"
	JWTAudience = "kindkart-api"
)

var dbSeq atomic.Int64

// OpenDB returns a migrated in-memory SQLite database private to the test.
// The pool is capped at one connection, so concurrent transactions serialise
// the way row locks would serialise them on Postgres.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:kindkart_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with the given role and fake personal details.
func CreateUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Name:  gofakeit.Name(),
		Email: fmt.Sprintf("%d.%s", time.Now().UnixNano(), gofakeit.Email()),
		Role:  role,
		Location: models.Location{
			City:  gofakeit.City(),
			State: gofakeit.State(),
		},
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateItem inserts an available, visible item owned by donor.
func CreateItem(t *testing.T, db *gorm.DB, donor *models.User) *models.Item {
	t.Helper()
	item := &models.Item{
		DonorID:     donor.ID,
		Title:       gofakeit.ProductName(),
		Description: gofakeit.Sentence(12),
		Category:    "furniture",
		Condition:   "good",
		Status:      models.ItemStatusAvailable,
		IsVisible:   true,
	}
	require.NoError(t, db.Omit("Donor").Create(item).Error)
	return item
}

// ReloadItem reads the item's current row.
func ReloadItem(t *testing.T, db *gorm.DB, id uint) *models.Item {
	t.Helper()
	var item models.Item
	require.NoError(t, db.First(&item, id).Error)
	return &item
}

// ReloadUser reads the user's current row.
func ReloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return &u
}

// Token signs a bearer token for userID accepted by the API middleware.
func Token(t *testing.T, userID uint) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    JWTIssuer,
		Audience:  jwt.ClaimStrings{JWTAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	require.NoError(t, err)
	return s
}
