package models

import (
	"time"
)

// User represents an account. The email address is the login identity.
type User struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Email        string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name         string     `gorm:"size:255" json:"name"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	IsStaff      bool       `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser  bool       `gorm:"not null;default:false" json:"is_superuser"`
	LastLogin    *time.Time `json:"last_login"`

	// Relationships
	Tokens   []AuthToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Tags     []Tag       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Posts    []Post      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Comments []Comment   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
