package database

import (
	"context"
	"testing"
	"time"

	"kindkart/internal/config"
	"kindkart/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)
	err := configurePool(db, &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestLoadMigrations(t *testing.T) {
	all, err := LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, 1, all[0].Version)
	assert.Equal(t, "000001_marketplace", all[0].String())
	assert.Contains(t, all[0].UpScript, "idx_requests_active_item")
	assert.Contains(t, all[0].DownScript, "DROP TABLE IF EXISTS requests")
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		mode, env       string
		wantSQL, wantAu bool
		wantErr         bool
	}{
		{"", "development", true, true, false},
		{"hybrid", "production", true, false, false},
		{"sql", "development", true, false, false},
		{"auto", "development", false, true, false},
		{"auto", "production", false, false, true},
		{"bogus", "development", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.env, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&config.Config{DBSchemaMode: tt.mode, Env: tt.env})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAu, runAuto)
		})
	}
}

func TestAutoMigrate_ActiveRequestIndexIsPartial(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, AutoMigrate(db))

	expires := time.Now().Add(time.Hour)
	first := models.Request{ItemID: 1, RequesterID: 2, DonorID: 3, Status: models.RequestStatusPending, ExpiresAt: expires}
	require.NoError(t, db.Create(&first).Error)

	dup := models.Request{ItemID: 1, RequesterID: 4, DonorID: 3, Status: models.RequestStatusPending, ExpiresAt: expires}
	err := db.Create(&dup).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	require.NoError(t, db.Model(&first).Update("status", models.RequestStatusRejected).Error)
	again := models.Request{ItemID: 1, RequesterID: 4, DonorID: 3, Status: models.RequestStatusPending, ExpiresAt: expires}
	assert.NoError(t, db.Create(&again).Error)
}

func TestAppliedVersions_EmptyDatabase(t *testing.T) {
	db := openSQLite(t)
	versions, err := AppliedVersions(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, versions)
}
