package models

import (
	"time"
)

// Post is a blog entry owned by a user
type Post struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedOn      time.Time `gorm:"autoCreateTime;index" json:"created_on"`
	UpdatedAt      time.Time `json:"updated_at"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	Title          string    `gorm:"not null;size:255" json:"title"`
	Content        string    `gorm:"not null;size:5000" json:"content"`
	Link           string    `gorm:"size:255" json:"link"`
	Image          string    `json:"image"`           // Path relative to the media root
	ImageThumbnail string    `json:"image_thumbnail"` // Path relative to the media root

	// Relationships
	User     User      `gorm:"foreignKey:UserID" json:"-"`
	Tags     []Tag     `gorm:"many2many:post_tags;constraint:OnDelete:CASCADE" json:"tags,omitempty"`
	Comments []Comment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
}
