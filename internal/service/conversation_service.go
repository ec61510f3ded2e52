package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"kindkart/internal/models"
	"kindkart/internal/observability"
	"kindkart/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const maxMessageBody = 1000

// closedForMessages are the request statuses that refuse new messages.
var closedForMessages = []models.RequestStatus{models.RequestStatusCompleted, models.RequestStatusCancelled}

// ConversationService manages the per-request message log.
type ConversationService struct {
	db        *gorm.DB
	requests  repository.RequestRepository
	lifecycle *RequestService
	publisher EventPublisher
	now       Clock
}

// NewConversationService returns a ConversationService. Requests are loaded
// through lifecycle so overdue requests are expired before a message lands,
// and message timestamps follow its clock.
func NewConversationService(db *gorm.DB, lifecycle *RequestService, publisher EventPublisher) *ConversationService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &ConversationService{
		db:        db,
		requests:  repository.NewRequestRepository(db),
		lifecycle: lifecycle,
		publisher: publisher,
		now:       lifecycle.now,
	}
}

// Post appends a message from sender to the request's conversation.
func (s *ConversationService) Post(ctx context.Context, sender Actor, requestID uint, body string) (msg *models.RequestMessage, err error) {
	ctx, span := observability.StartSpan(ctx, "request.message",
		attribute.Int64("request.id", int64(requestID)),
		attribute.Int64("actor.id", int64(sender.ID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	req, err := s.lifecycle.load(ctx, requestID, func(req *models.Request) error {
		if !req.IsParticipant(sender.ID) {
			return models.NewForbiddenError("Only the requester and donor can message on this request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if hasStatus(closedForMessages, req.Status) {
		return nil, models.NewInvalidTransitionError(fmt.Sprintf("Cannot message on a request that is %s", req.Status))
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, models.NewValidationError("message body is required")
	}
	if utf8.RuneCountInString(body) > maxMessageBody {
		return nil, models.NewValidationError(fmt.Sprintf("message body must be at most %d characters", maxMessageBody))
	}

	msg = &models.RequestMessage{
		RequestID: req.ID,
		SenderID:  sender.ID,
		Body:      body,
		CreatedAt: s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := repository.NewRequestRepository(tx)
		if err := requests.BumpMessageCount(ctx, req.ID, closedForMessages); err != nil {
			return err
		}
		return requests.AppendMessage(ctx, msg)
	})
	if err != nil {
		if models.IsCode(err, models.CodeConflict) {
			observability.RequestConflicts.WithLabelValues(string(models.EventMessagePosted)).Inc()
			return nil, models.NewInvalidTransitionError("Request was closed before the message was posted")
		}
		return nil, err
	}

	s.publisher.PublishRequestEvent(ctx, models.RequestEvent{
		RequestID:   req.ID,
		ItemID:      req.ItemID,
		Type:        models.EventMessagePosted,
		ActorID:     sender.ID,
		RequesterID: req.RequesterID,
		DonorID:     req.DonorID,
		Timestamp:   s.now(),
	})
	return msg, nil
}

// MarkRead flags every message not written by reader as read and returns how
// many changed. It works on terminal requests too.
func (s *ConversationService) MarkRead(ctx context.Context, reader Actor, requestID uint) (int64, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return 0, err
	}
	if !req.IsParticipant(reader.ID) {
		return 0, models.NewForbiddenError("Only the requester and donor can read this conversation")
	}
	return s.requests.MarkMessagesRead(ctx, requestID, reader.ID)
}

// UnreadCount counts messages on the request that user has not read.
func (s *ConversationService) UnreadCount(ctx context.Context, user Actor, requestID uint) (int64, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return 0, err
	}
	if !req.IsParticipant(user.ID) {
		return 0, models.NewForbiddenError("Only the requester and donor can read this conversation")
	}
	return s.requests.UnreadCount(ctx, requestID, user.ID)
}
