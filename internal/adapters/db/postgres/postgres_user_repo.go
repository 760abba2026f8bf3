package postgres

import (
	"context"
	"errors"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

type PostgresUserRepo struct {
	db *gorm.DB
}

func NewPostgresUserRepo(db *gorm.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func (p *PostgresUserRepo) CreateUser(ctx context.Context, user model.User) (uuid.UUID, error) {
	// the json serializer writes a nil slice as NULL; the column is NOT NULL
	if user.WatchHistory == nil {
		user.WatchHistory = []string{}
	}
	res := p.db.WithContext(ctx).Create(&user)
	if err := res.Error; err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, customErrors.NewAlreadyExists("user with email or username already exists")
		}
		return uuid.Nil, customErrors.WrapInternal(err, "CreateUser")
	}
	return user.ID, nil
}

func (p *PostgresUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	var u model.User
	res := p.db.WithContext(ctx).Where("id = ?", id).First(&u)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.User{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.User{}, customErrors.WrapInternal(err, "GetUserByID")
	}

	return u, nil
}

func (p *PostgresUserRepo) GetUserByCredential(ctx context.Context, username, email string) (model.User, error) {
	q := p.db.WithContext(ctx)
	switch {
	case username != "" && email != "":
		q = q.Where("username = ? OR email = ?", username, email)
	case username != "":
		q = q.Where("username = ?", username)
	case email != "":
		q = q.Where("email = ?", email)
	default:
		return model.User{}, customErrors.ErrNotFound
	}

	var u model.User
	res := q.First(&u)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.User{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.User{}, customErrors.WrapInternal(err, "GetUserByCredential")
	}

	return u, nil
}

func (p *PostgresUserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (model.User, error) {
	updates := map[string]any{}
	if fullName != "" {
		updates["full_name"] = fullName
	}
	if email != "" {
		updates["email"] = email
	}
	return p.updateAndReload(ctx, id, updates, "UpdateProfile")
}

func (p *PostgresUserRepo) UpdateImages(ctx context.Context, id uuid.UUID, avatarURL, coverURL string) (model.User, error) {
	updates := map[string]any{}
	if avatarURL != "" {
		updates["avatar_url"] = avatarURL
	}
	if coverURL != "" {
		updates["cover_url"] = coverURL
	}
	return p.updateAndReload(ctx, id, updates, "UpdateImages")
}

func (p *PostgresUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res := p.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "UpdatePassword")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrNotFound
	}

	return nil
}

// SetRefreshToken writes a single column and bypasses hooks and updated_at.
func (p *PostgresUserRepo) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	var value any = gorm.Expr("NULL")
	if token != nil {
		value = *token
	}

	res := p.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).UpdateColumn("refresh_token", value)
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "SetRefreshToken")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrNotFound
	}

	return nil
}

func (p *PostgresUserRepo) RotateRefreshToken(ctx context.Context, id uuid.UUID, presented, next string) error {
	res := p.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND refresh_token = ?", id, presented).
		UpdateColumn("refresh_token", next)
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "RotateRefreshToken")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrTokenReused
	}

	return nil
}

func (p *PostgresUserRepo) updateAndReload(ctx context.Context, id uuid.UUID, updates map[string]any, op string) (model.User, error) {
	if len(updates) > 0 {
		res := p.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates)
		if err := res.Error; err != nil {
			if isUniqueViolation(err) {
				return model.User{}, customErrors.NewAlreadyExists("email already in use")
			}
			return model.User{}, customErrors.WrapInternal(err, op)
		}
		if res.RowsAffected == 0 {
			return model.User{}, customErrors.ErrNotFound
		}
	}

	return p.GetUserByID(ctx, id)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
