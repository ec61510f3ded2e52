// Package notifications publishes request lifecycle events to Redis for an
// external delivery service.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"kindkart/internal/models"
	"kindkart/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RequestEventsChannel carries every lifecycle event.
const RequestEventsChannel = "requests:events"

const publishTimeout = 2 * time.Second

// UserChannel returns the per-user notification channel.
func UserChannel(userID uint) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client makes publishing a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishRequestEvent stamps the event with an id and publishes it to both
// participants and to the shared events channel. It never fails the caller:
// errors are logged and counted.
func (n *Notifier) PublishRequestEvent(ctx context.Context, event models.RequestEvent) {
	if n == nil || n.rdb == nil {
		observability.EventsPublished.WithLabelValues(string(event.Type), "skipped").Inc()
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.failed(ctx, event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	channels := []string{RequestEventsChannel, UserChannel(event.RequesterID)}
	if event.DonorID != event.RequesterID {
		channels = append(channels, UserChannel(event.DonorID))
	}
	pipe := n.rdb.Pipeline()
	for _, ch := range channels {
		pipe.Publish(ctx, ch, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		n.failed(ctx, event, err)
		return
	}
	observability.EventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
}

func (n *Notifier) failed(ctx context.Context, event models.RequestEvent, err error) {
	observability.EventsPublished.WithLabelValues(string(event.Type), "error").Inc()
	observability.GlobalLogger.WarnContext(ctx, "failed to publish request event",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.Uint64("request_id", uint64(event.RequestID)),
		slog.String("error", err.Error()),
	)
}

// StartEventSubscriber subscribes to the shared events channel and calls
// onEvent for each decoded event until ctx is cancelled.
func (n *Notifier) StartEventSubscriber(ctx context.Context, onEvent func(models.RequestEvent)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, RequestEventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", RequestEventsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.RequestEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					observability.GlobalLogger.WarnContext(ctx, "dropping malformed request event", slog.String("error", err.Error()))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.ErrorContext(ctx, "request event handler panicked",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onEvent(event)
				}()
			}
		}
	}()

	return nil
}
