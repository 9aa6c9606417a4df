package models

import (
	"time"
)

// Tag is a label owned by a single user. Names are not unique across users.
type Tag struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"not null;size:255;index" json:"name"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`

	// Relationships
	User  User   `gorm:"foreignKey:UserID" json:"-"`
	Posts []Post `gorm:"many2many:post_tags;" json:"-"`
}
