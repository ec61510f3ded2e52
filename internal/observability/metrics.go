// Package observability provides logging, metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrors counts Redis failures seen by middleware and caches, by operation.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindkart_redis_errors_total",
		Help: "Total number of Redis errors by operation",
	}, []string{"operation"})

	// RequestTransitions counts committed lifecycle transitions by event.
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindkart_request_transitions_total",
		Help: "Total number of committed request lifecycle transitions",
	}, []string{"event"})

	// RequestConflicts counts transitions that lost a race.
	RequestConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindkart_request_conflicts_total",
		Help: "Total number of request transitions rejected by a concurrent change",
	}, []string{"event"})

	// RequestsExpired counts pending requests cancelled by expiry.
	RequestsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindkart_requests_expired_total",
		Help: "Total number of pending requests cancelled by expiry",
	}, []string{"trigger"})

	// EventsPublished counts lifecycle events handed to the dispatcher.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindkart_events_published_total",
		Help: "Total number of lifecycle events published",
	}, []string{"type", "result"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kindkart_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

const queryStartKey = "observability:query_start"

// RegisterQueryMetrics installs GORM callbacks that observe query latency.
func RegisterQueryMetrics(db *gorm.DB) error {
	cb := db.Callback()
	pairs := []struct {
		operation string
		before    gormCallback
		after     gormCallback
	}{
		{"create", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")},
		{"query", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")},
		{"update", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")},
		{"delete", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")},
		{"raw", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw")},
	}

	for _, p := range pairs {
		operation := p.operation
		if err := p.before.Register("observability:before_"+operation, func(tx *gorm.DB) {
			tx.InstanceSet(queryStartKey, time.Now())
		}); err != nil {
			return err
		}
		if err := p.after.Register("observability:after_"+operation, func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := "unknown"
			if tx.Statement != nil && tx.Statement.Table != "" {
				table = tx.Statement.Table
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}); err != nil {
			return err
		}
	}
	return nil
}

type gormCallback interface {
	Register(name string, fn func(*gorm.DB)) error
}
