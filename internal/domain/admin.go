package domain

import "time"

// RoleAdmin is the only role allowed into the review panel
const RoleAdmin = "admin"

// Admin Model
type Admin struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                         // Primary key
	Username  string    `gorm:"size:64;uniqueIndex;not null" json:"username"` // Unique username
	Password  string    `gorm:"not null" json:"-"`                            // Hashed password
	Role      string    `gorm:"size:16;default:admin" json:"role"`            // Role: admin
	CreatedAt time.Time `json:"createdAt"`                                    // Creation time
}
