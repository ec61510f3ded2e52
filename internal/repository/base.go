// Package repository provides data access layer implementations for the application.
//
// Repositories are bound to a *gorm.DB. Constructing one over a transaction
// handle makes every call part of that transaction; list and aggregate reads
// may be served by the read replica and must not be used inside one.
package repository

import (
	"errors"
	"strings"
	"time"

	"kindkart/internal/database"
	"kindkart/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// Postgres error codes that mean "another transaction got there first".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

// classify maps a storage error onto the application error taxonomy.
func classify(err error, resource string, id interface{}) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.NewConflictError(resource + " conflicts with an existing record")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return models.NewConflictError(resource + " conflicts with an existing record")
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return models.NewConflictError(resource + " was modified concurrently")
		}
	}
	return models.NewInternalError(err)
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func paginate(p Page) func(*gorm.DB) *gorm.DB {
	p = p.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(p.Limit).Offset(p.Offset)
	}
}

// containing builds a case-insensitive LIKE pattern matching s anywhere.
func containing(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

// searchScope matches term against any of columns. An empty term matches everything.
func searchScope(term string, columns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		term = strings.TrimSpace(term)
		if term == "" {
			return db
		}
		clauses := make([]string, len(columns))
		args := make([]interface{}, len(columns))
		for i, col := range columns {
			clauses[i] = "LOWER(" + col + `) LIKE ? ESCAPE '\'`
			args[i] = containing(term)
		}
		return db.Where(strings.Join(clauses, " OR "), args...)
	}
}

// createdSince limits a query to rows created at or after since. A zero since matches everything.
func createdSince(since time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if since.IsZero() {
			return db
		}
		return db.Where("created_at >= ?", since)
	}
}
