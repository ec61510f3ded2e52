package models

import "time"

// ItemStatus is the availability state of an item.
type ItemStatus string

const (
	// ItemStatusAvailable can be requested.
	ItemStatusAvailable ItemStatus = "available"
	// ItemStatusRequested has one pending request.
	ItemStatusRequested ItemStatus = "requested"
	// ItemStatusAccepted has one accepted request.
	ItemStatusAccepted ItemStatus = "accepted"
	// ItemStatusCompleted was handed over.
	ItemStatusCompleted ItemStatus = "completed"
	// ItemStatusCancelled was withdrawn by its donor.
	ItemStatusCancelled ItemStatus = "cancelled"
)

// ItemStatuses lists every item status.
var ItemStatuses = []ItemStatus{
	ItemStatusAvailable, ItemStatusRequested, ItemStatusAccepted, ItemStatusCompleted, ItemStatusCancelled,
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	for _, known := range ItemStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// UnderNegotiation reports whether an active request holds the item.
func (s ItemStatus) UnderNegotiation() bool {
	return s == ItemStatusRequested || s == ItemStatusAccepted
}

// Item categories.
var ItemCategories = []string{
	"clothing", "electronics", "furniture", "books", "toys",
	"kitchen", "sports", "health", "baby", "other",
}

// Item conditions.
var ItemConditions = []string{"new", "like-new", "good", "fair", "poor"}

// Pickup preferences.
const (
	PickupOnly   = "pickup-only"
	DropoffOnly  = "dropoff-only"
	PickupOrDrop = "both"
)

// Item is a donation listed by a donor.
// CurrentRequestID is a weak reference maintained by the request lifecycle.
type Item struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	DonorID          uint       `gorm:"not null;index:idx_items_donor_status" json:"donor_id"`
	Donor            *User      `gorm:"foreignKey:DonorID" json:"donor,omitempty"`
	Title            string     `gorm:"size:100;not null" json:"title"`
	Description      string     `gorm:"size:1000;not null" json:"description"`
	Category         string     `gorm:"size:30;not null;index" json:"category"`
	Condition        string     `gorm:"size:20;not null" json:"condition"`
	Location         Location   `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	PickupPreference string     `gorm:"size:20;not null;default:'both'" json:"pickup_preference"`
	Status           ItemStatus `gorm:"type:varchar(20);not null;default:'available';index:idx_items_donor_status;index:idx_items_status_visible" json:"status"`
	CurrentRequestID *uint      `gorm:"index" json:"current_request_id"`
	ViewCount        int        `gorm:"not null;default:0" json:"view_count"`
	RequestCount     int        `gorm:"not null;default:0" json:"request_count"`
	IsVisible        bool       `gorm:"not null;default:true;index:idx_items_status_visible" json:"is_visible"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Item) TableName() string {
	return "items"
}

// IsExpired reports whether the listing has passed its expiry.
func (i *Item) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// IsRequestable reports whether a new request may be opened against the item.
func (i *Item) IsRequestable(now time.Time) bool {
	return i.Status == ItemStatusAvailable && i.CurrentRequestID == nil && i.IsVisible && !i.IsExpired(now)
}
