package service

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"kindkart/internal/observability"
)

// ExpirySweeper periodically cancels pending requests past their expiry.
// Lazy expiry on access still applies when the sweeper is not running.
type ExpirySweeper struct {
	requests *RequestService
	interval time.Duration
	batch    int
}

// NewExpirySweeper returns a sweeper that runs every interval and expires at
// most batch requests per pass.
func NewExpirySweeper(requests *RequestService, interval time.Duration, batch int) *ExpirySweeper {
	if batch <= 0 {
		batch = 100
	}
	return &ExpirySweeper{requests: requests, interval: interval, batch: batch}
}

// SweepOnce expires overdue requests until none are left and returns how many it cancelled.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.requests.ExpireOverdue(ctx, s.batch, ExpiryTriggerSweep)
		total += n
		if err != nil || n < s.batch {
			return total, err
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// Start runs the sweeper until ctx is cancelled. A non-positive interval disables it.
func (s *ExpirySweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			observability.GlobalLogger.ErrorContext(ctx, "expiry sweep panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	n, err := s.SweepOnce(ctx)
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		observability.GlobalLogger.InfoContext(ctx, "expired pending requests", slog.Int("count", n))
	}
}
