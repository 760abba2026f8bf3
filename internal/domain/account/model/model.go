package model

import (
	"github.com/google/uuid"
	"time"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	FullName     string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	AvatarURL    string    `gorm:"not null"`
	CoverURL     string
	RefreshToken *string
	WatchHistory []string `gorm:"serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the user without its secrets.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	AvatarURL    string    `json:"avatar"`
	CoverURL     string    `json:"coverImage"`
	WatchHistory []string  `json:"watchHistory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) Profile() Profile {
	history := u.WatchHistory
	if history == nil {
		history = []string{}
	}
	return Profile{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		AvatarURL:    u.AvatarURL,
		CoverURL:     u.CoverURL,
		WatchHistory: history,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	UserId          uuid.UUID
	RefreshTokenJTI string
}

// Session is the result of a successful login.
type Session struct {
	TokenPair
	User Profile
}
