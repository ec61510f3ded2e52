// Package models contains data structures for the application's domain models.
package models

import "time"

// Role is the marketplace role a user acts under.
type Role string

const (
	// RoleDonor lists items.
	RoleDonor Role = "donor"
	// RoleRecipient requests items for themselves.
	RoleRecipient Role = "recipient"
	// RoleNGO requests items on behalf of an organisation.
	RoleNGO Role = "ngo"
	// RoleAdmin moderates the marketplace.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleRecipient, RoleNGO, RoleAdmin:
		return true
	}
	return false
}

// CanRequest reports whether the role may open requests for items.
func (r Role) CanRequest() bool {
	return r == RoleRecipient || r == RoleNGO || r == RoleAdmin
}

// CanList reports whether the role may list items.
func (r Role) CanList() bool {
	return r == RoleDonor || r == RoleAdmin
}

// Location is a postal location shared by users and items.
type Location struct {
	Address string `gorm:"size:200" json:"address,omitempty"`
	City    string `gorm:"size:100;index" json:"city,omitempty"`
	State   string `gorm:"size:100" json:"state,omitempty"`
	ZipCode string `gorm:"size:20" json:"zip_code,omitempty"`
}

// UserStats are cumulative donation counters.
type UserStats struct {
	ItemsDonated  int `gorm:"not null;default:0" json:"items_donated"`
	ItemsReceived int `gorm:"not null;default:0" json:"items_received"`
	TotalImpact   int `gorm:"not null;default:0" json:"total_impact"`
}

// User is a marketplace participant.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email,omitempty"`
	PasswordHash   string    `gorm:"size:255" json:"-"`
	Role           Role      `gorm:"type:varchar(20);not null;default:'recipient';index" json:"role"`
	Phone          string    `gorm:"size:30" json:"phone,omitempty"`
	Bio            string    `gorm:"size:500" json:"bio,omitempty"`
	ProfilePicture string    `gorm:"size:500" json:"profile_picture,omitempty"`
	Location       Location  `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	IsBlocked      bool      `gorm:"not null;default:false" json:"is_blocked"`
	IsVerified     bool      `gorm:"not null;default:false" json:"is_verified"`
	Stats          UserStats `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// PublicProfile is a user as shown to other users.
type PublicProfile struct {
	User
	ItemsCount int64 `json:"items_count"`
}

// UserActivity summarises a user's request activity.
type UserActivity struct {
	UserStats
	TotalRequests   int64 `json:"total_requests"`
	PendingRequests int64 `json:"pending_requests"`
	ReceivedPending int64 `json:"received_pending"`
	ActiveItems     int64 `json:"active_items"`
}
