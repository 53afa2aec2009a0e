package model

import (
	"time"
)

const DefaultSubscriptionLevel = "free"

// swagger:model User
type User struct {
	BaseModel
	Email             string     `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Username          string     `gorm:"size:100;not null" json:"username"`
	Password          string     `gorm:"size:100;not null" json:"-"`
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	SubscriptionLevel string     `gorm:"size:32;default:'free'" json:"subscription_level"`
	MediaURLs         []string   `gorm:"serializer:json" json:"media_urls"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// RefreshToken is a long-lived credential grant. Only a bcrypt hash of the
// secret is stored.
type RefreshToken struct {
	BaseModel
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"size:100;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Revoked   bool      `gorm:"default:false;index"`
	RevokedAt *time.Time
}

func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
