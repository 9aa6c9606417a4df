package models

import (
	"time"
)

// Comment is user-authored text attached to a post
type Comment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedOn time.Time `gorm:"autoCreateTime;index" json:"created_on"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	Content   string    `gorm:"not null;size:5000" json:"content"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
	Post Post `gorm:"foreignKey:PostID" json:"-"`
}

// CommentOrder is the default ordering of comments: oldest first
const CommentOrder = "created_on ASC, id ASC"
