package models

import "time"

// RequestEventType names a lifecycle event.
type RequestEventType string

const (
	EventRequestCreated   RequestEventType = "created"
	EventRequestAccepted  RequestEventType = "accepted"
	EventRequestRejected  RequestEventType = "rejected"
	EventRequestCompleted RequestEventType = "completed"
	EventRequestCancelled RequestEventType = "cancelled"
	EventMessagePosted    RequestEventType = "message_posted"
)

// RequestEvent is emitted after a lifecycle change commits.
// ActorID is zero for changes made by the system clock. RequesterID and
// DonorID let a dispatcher route the event to both participants.
type RequestEvent struct {
	ID          string           `json:"eventId"`
	RequestID   uint             `json:"requestId"`
	ItemID      uint             `json:"itemId"`
	Type        RequestEventType `json:"type"`
	ActorID     uint             `json:"actorId"`
	RequesterID uint             `json:"requesterId"`
	DonorID     uint             `json:"donorId"`
	Timestamp   time.Time        `json:"timestamp"`
}
