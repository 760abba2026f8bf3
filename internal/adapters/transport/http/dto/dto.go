package dto

import (
	"github.com/google/uuid"
	"time"
)

// RegisterDTO is bound from a multipart form; the file fields hold paths of the saved temp files.
type RegisterDTO struct {
	Username   string `form:"username" validate:"required"`
	Email      string `form:"email"    validate:"required,email"`
	FullName   string `form:"fullName" validate:"required"`
	Password   string `form:"password" validate:"required"`
	AvatarPath string `form:"-"`
	CoverPath  string `form:"-"`
}

type LoginDTO struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email"    validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshDTO struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutDTO carries the identity established by the auth middleware.
type LogoutDTO struct {
	UserID    uuid.UUID `validate:"required"`
	AccessJTI string
	AccessExp time.Time
}

type ChangePasswordDTO struct {
	OldPassword     string `json:"oldPassword"     validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type UpdateAccountDTO struct {
	FullName string `json:"fullName" validate:"required_without=Email"`
	Email    string `json:"email"    validate:"omitempty,email"`
}
