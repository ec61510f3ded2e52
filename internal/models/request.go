package models

import (
	"math"
	"time"
)

// RequestStatus is a state of the request lifecycle.
type RequestStatus string

const (
	// RequestStatusPending awaits the donor's decision.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusAccepted was accepted by the donor and awaits hand-over.
	RequestStatusAccepted RequestStatus = "accepted"
	// RequestStatusRejected was declined by the donor.
	RequestStatusRejected RequestStatus = "rejected"
	// RequestStatusCompleted was handed over.
	RequestStatusCompleted RequestStatus = "completed"
	// RequestStatusCancelled was withdrawn by a participant, an admin, or expiry.
	RequestStatusCancelled RequestStatus = "cancelled"
)

// ActiveRequestStatuses hold an item.
var ActiveRequestStatuses = []RequestStatus{RequestStatusPending, RequestStatusAccepted}

// IsActive reports whether the status holds its item.
func (s RequestStatus) IsActive() bool {
	return s == RequestStatusPending || s == RequestStatusAccepted
}

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusRejected || s == RequestStatusCompleted || s == RequestStatusCancelled
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// ExpiredReason is recorded on the status change written by expiry.
const ExpiredReason = "expired"

// DefaultRequestTTL is how long a request may stay pending.
const DefaultRequestTTL = 7 * 24 * time.Hour

// PickupDetails are the requester's hand-over preferences.
type PickupDetails struct {
	PreferredDate       *time.Time `json:"preferred_date,omitempty"`
	PreferredTime       string     `gorm:"size:50" json:"preferred_time,omitempty"`
	Address             string     `gorm:"size:200" json:"address,omitempty"`
	ContactPhone        string     `gorm:"size:30" json:"contact_phone,omitempty"`
	SpecialInstructions string     `gorm:"size:200" json:"special_instructions,omitempty"`
}

// CompletionDetails are recorded once, when a request completes.
type CompletionDetails struct {
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CompletedByID *uint      `json:"completed_by_id,omitempty"`
	Rating        *int       `json:"rating,omitempty"`
	Comment       string     `gorm:"size:500" json:"comment,omitempty"`
}

// Request is a recipient's claim on one item.
// At most one request per item may be pending or accepted; the partial unique
// index on item_id enforces it in storage.
type Request struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ItemID       uint              `gorm:"not null;index:idx_requests_item_status;uniqueIndex:idx_requests_active_item,where:status = 'pending' OR status = 'accepted'" json:"item_id"`
	Item         *Item             `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	RequesterID  uint              `gorm:"not null;index:idx_requests_requester_status" json:"requester_id"`
	Requester    *User             `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	DonorID      uint              `gorm:"not null;index:idx_requests_donor_status" json:"donor_id"`
	Donor        *User             `gorm:"foreignKey:DonorID" json:"donor,omitempty"`
	Status       RequestStatus     `gorm:"type:varchar(20);not null;default:'pending';index:idx_requests_item_status;index:idx_requests_requester_status;index:idx_requests_donor_status" json:"status"`
	Message      string            `gorm:"size:500" json:"message,omitempty"`
	Pickup       PickupDetails     `gorm:"embedded;embeddedPrefix:pickup_" json:"pickup_details"`
	Completion   CompletionDetails `gorm:"embedded;embeddedPrefix:completion_" json:"completion_details"`
	MessageCount int               `gorm:"not null;default:0" json:"message_count"`
	ExpiresAt    time.Time         `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	StatusHistory []StatusChange   `gorm:"foreignKey:RequestID" json:"status_history"`
	Messages      []RequestMessage `gorm:"foreignKey:RequestID" json:"messages"`

	DaysUntilExpiry *int  `gorm:"-" json:"days_until_expiry,omitempty"`
	UnreadCount     int64 `gorm:"-" json:"unread_count"`
}

// TableName specifies the table name for GORM
func (Request) TableName() string {
	return "requests"
}

// IsParticipant reports whether userID is the requester or the donor.
func (r *Request) IsParticipant(userID uint) bool {
	return r.RequesterID == userID || r.DonorID == userID
}

// IsExpired reports whether a pending request has passed its expiry.
func (r *Request) IsExpired(now time.Time) bool {
	return r.Status == RequestStatusPending && now.After(r.ExpiresAt)
}

// RemainingDays returns whole days left before expiry, rounded up, or nil
// when the request is not pending.
func (r *Request) RemainingDays(now time.Time) *int {
	if r.Status != RequestStatusPending {
		return nil
	}
	days := int(math.Ceil(r.ExpiresAt.Sub(now).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}

// LatestStatus returns the status of the last history entry.
func (r *Request) LatestStatus() (RequestStatus, bool) {
	if len(r.StatusHistory) == 0 {
		return "", false
	}
	return r.StatusHistory[len(r.StatusHistory)-1].Status, true
}

// StatusChange is one entry of a request's append-only status history.
// ChangedByID is nil for changes made by the system clock.
type StatusChange struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	RequestID   uint          `gorm:"not null;index" json:"request_id"`
	Status      RequestStatus `gorm:"type:varchar(20);not null" json:"status"`
	ChangedByID *uint         `json:"changed_by_id"`
	Reason      string        `gorm:"size:200" json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"timestamp"`
}

// TableName specifies the table name for GORM
func (StatusChange) TableName() string {
	return "request_status_changes"
}

// RequestMessage is one entry of a request's append-only conversation.
type RequestMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID uint      `gorm:"not null;index" json:"request_id"`
	SenderID  uint      `gorm:"not null;index" json:"sender_id"`
	Body      string    `gorm:"size:1000;not null" json:"body"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `json:"timestamp"`
}

// TableName specifies the table name for GORM
func (RequestMessage) TableName() string {
	return "request_messages"
}
