package repo

import (
	"context"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/google/uuid"
	"time"
)

type UserRepo interface {
	CreateUser(ctx context.Context, u model.User) (uuid.UUID, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)

	// GetUserByCredential matches username OR email; empty arguments never match.
	GetUserByCredential(ctx context.Context, username, email string) (model.User, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (model.User, error)

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	UpdateImages(ctx context.Context, id uuid.UUID, avatarURL, coverURL string) (model.User, error)

	// SetRefreshToken overwrites the stored refresh token; nil clears it.
	SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error

	// RotateRefreshToken stores next only if the stored token equals presented.
	// It returns errors.ErrTokenReused when nothing was swapped.
	RotateRefreshToken(ctx context.Context, id uuid.UUID, presented, next string) error
}

type TokenRepo interface {
	RevokeAccess(ctx context.Context, jti string, expiresAt time.Time) error

	IsAccessRevoked(ctx context.Context, jti string) (bool, error)
}
