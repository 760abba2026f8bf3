package service

import (
	"context"
	"errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/password"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/media"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	repo "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/token"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/metrics"
	"github.com/go-playground/validator/v10"
	"strings"
	"time"

	"github.com/google/uuid"
)

type accountService struct {
	userRepo  repo.UserRepo
	tokenRepo repo.TokenRepo
	tokens    token.Issuer
	hasher    *password.Hasher
	media     media.Host
	v         *validator.Validate
}

type Service interface {
	Register(context.Context, dto.RegisterDTO) (model.Profile, error)
	Login(context.Context, dto.LoginDTO) (model.Session, error)
	Refresh(context.Context, dto.RefreshDTO) (model.TokenPair, error)
	Logout(context.Context, dto.LogoutDTO) error
	ChangePassword(context.Context, uuid.UUID, dto.ChangePasswordDTO) error

	// Authenticate resolves an access token to its user.
	Authenticate(ctx context.Context, accessToken string) (model.Profile, token.Claims, error)
	CurrentUser(context.Context, uuid.UUID) (model.Profile, error)
	UpdateAccount(context.Context, uuid.UUID, dto.UpdateAccountDTO) (model.Profile, error)
	UpdateAvatar(ctx context.Context, id uuid.UUID, localPath string) (model.Profile, error)
	UpdateCoverImage(ctx context.Context, id uuid.UUID, localPath string) (model.Profile, error)
}

func New(
	ur repo.UserRepo,
	tr repo.TokenRepo,
	ti token.Issuer,
	h *password.Hasher,
	mh media.Host,
	v *validator.Validate,
) Service {
	return &accountService{
		userRepo: ur, tokenRepo: tr, tokens: ti, hasher: h, media: mh, v: v,
	}
}

func (a *accountService) Register(ctx context.Context, dto dto.RegisterDTO) (model.Profile, error) {
	if err := a.v.Struct(dto); err != nil {
		return model.Profile{}, customErrors.NewInvalidArgument(err.Error())
	}
	if dto.AvatarPath == "" {
		return model.Profile{}, customErrors.NewInvalidArgument("avatar file is required")
	}

	username := normalize(dto.Username)
	email := normalize(dto.Email)

	_, err := a.userRepo.GetUserByCredential(ctx, username, email)
	switch {
	case err == nil:
		return model.Profile{}, customErrors.NewAlreadyExists("user with email or username already exists")
	case !errors.Is(err, customErrors.ErrNotFound):
		return model.Profile{}, customErrors.WrapInternal(err, "Register")
	}

	avatarURL, err := a.media.Upload(ctx, dto.AvatarPath)
	if err != nil || avatarURL == "" {
		return model.Profile{}, customErrors.NewInvalidArgument("avatar file is required")
	}

	// a failed cover upload degrades to no cover
	var coverURL string
	if dto.CoverPath != "" {
		if url, err := a.media.Upload(ctx, dto.CoverPath); err == nil {
			coverURL = url
		}
	}

	passwordHash, err := a.hasher.Hash(dto.Password)
	if err != nil {
		return model.Profile{}, err
	}

	user := model.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(dto.FullName),
		PasswordHash: passwordHash,
		AvatarURL:    avatarURL,
		CoverURL:     coverURL,
		WatchHistory: []string{},
	}
	if _, err = a.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, customErrors.ErrAlreadyExists) {
			return model.Profile{}, err
		}
		return model.Profile{}, customErrors.WrapInternal(err, "Register")
	}

	created, err := a.userRepo.GetUserByID(ctx, user.ID)
	if err != nil {
		return model.Profile{}, customErrors.WrapInternal(err, "Register")
	}
	return created.Profile(), nil
}

func (a *accountService) Login(ctx context.Context, dto dto.LoginDTO) (model.Session, error) {
	if err := a.v.Struct(dto); err != nil {
		return model.Session{}, customErrors.NewInvalidArgument(err.Error())
	}

	user, err := a.userRepo.GetUserByCredential(ctx, normalize(dto.Username), normalize(dto.Email))
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		metrics.SessionEvents.WithLabelValues("login", "not_found").Inc()
		return model.Session{}, customErrors.NewNotFound("user does not exist")
	case err != nil:
		return model.Session{}, customErrors.WrapInternal(err, "Login")
	}

	ok, err := a.hasher.Verify(user.PasswordHash, dto.Password)
	if err != nil {
		return model.Session{}, err
	}
	if !ok {
		metrics.SessionEvents.WithLabelValues("login", "rejected").Inc()
		return model.Session{}, customErrors.ErrInvalidCredentials
	}

	pair, err := a.issueTokens(user.ID)
	if err != nil {
		return model.Session{}, err
	}
	// overwrites any previous refresh token
	if err = a.userRepo.SetRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		return model.Session{}, customErrors.WrapInternal(err, "StoreRefresh")
	}

	metrics.SessionEvents.WithLabelValues("login", "ok").Inc()
	return model.Session{TokenPair: pair, User: user.Profile()}, nil
}

func (a *accountService) Refresh(ctx context.Context, dto dto.RefreshDTO) (model.TokenPair, error) {
	presented := strings.TrimSpace(dto.RefreshToken)
	if presented == "" {
		return model.TokenPair{}, customErrors.NewUnauthorized("unauthorized request")
	}

	claims, err := a.tokens.VerifyRefreshToken(presented)
	if err != nil {
		metrics.SessionEvents.WithLabelValues("refresh", "rejected").Inc()
		if errors.Is(err, token.ErrExpired) {
			return model.TokenPair{}, customErrors.NewUnauthorized("refresh token expired")
		}
		return model.TokenPair{}, customErrors.NewUnauthorized("invalid refresh token")
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.TokenPair{}, customErrors.NewUnauthorized("invalid refresh token")
	}

	user, err := a.userRepo.GetUserByID(ctx, uid)
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		metrics.SessionEvents.WithLabelValues("refresh", "rejected").Inc()
		return model.TokenPair{}, customErrors.NewUnauthorized("invalid refresh token")
	case err != nil:
		return model.TokenPair{}, customErrors.WrapInternal(err, "Refresh")
	}

	if user.RefreshToken == nil || *user.RefreshToken != presented {
		metrics.SessionEvents.WithLabelValues("refresh", "reused").Inc()
		return model.TokenPair{}, customErrors.ErrTokenReused
	}

	pair, err := a.issueTokens(uid)
	if err != nil {
		return model.TokenPair{}, err
	}

	// a concurrent refresh may have swapped the token since the read above
	if err = a.userRepo.RotateRefreshToken(ctx, uid, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, customErrors.ErrTokenReused) {
			metrics.SessionEvents.WithLabelValues("refresh", "reused").Inc()
			return model.TokenPair{}, err
		}
		return model.TokenPair{}, customErrors.WrapInternal(err, "Refresh")
	}

	metrics.SessionEvents.WithLabelValues("refresh", "ok").Inc()
	return pair, nil
}

func (a *accountService) Logout(ctx context.Context, dto dto.LogoutDTO) error {
	if err := a.v.Struct(dto); err != nil {
		return customErrors.NewInvalidArgument(err.Error())
	}

	err := a.userRepo.SetRefreshToken(ctx, dto.UserID, nil)
	if err != nil && !errors.Is(err, customErrors.ErrNotFound) {
		return customErrors.WrapInternal(err, "Logout")
	}

	if dto.AccessJTI != "" {
		if err := a.tokenRepo.RevokeAccess(ctx, dto.AccessJTI, dto.AccessExp); err != nil {
			return customErrors.WrapInternal(err, "RevokeAccess")
		}
	}

	metrics.SessionEvents.WithLabelValues("logout", "ok").Inc()
	return nil
}

func (a *accountService) ChangePassword(ctx context.Context, id uuid.UUID, dto dto.ChangePasswordDTO) error {
	if err := a.v.Struct(dto); err != nil {
		return customErrors.NewInvalidArgument(err.Error())
	}
	user, err := a.userRepo.GetUserByID(ctx, id)
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		return customErrors.NewUnauthorized("invalid access token")
	case err != nil:
		return customErrors.WrapInternal(err, "ChangePassword")
	}

	ok, err := a.hasher.Verify(user.PasswordHash, dto.OldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return customErrors.ErrInvalidCredentials
	}
	if dto.NewPassword == dto.OldPassword {
		return customErrors.NewInvalidArgument("new password must differ from the current one")
	}
	if dto.ConfirmPassword != dto.NewPassword {
		return customErrors.NewInvalidArgument("password confirmation does not match")
	}

	hash, err := a.hasher.Hash(dto.NewPassword)
	if err != nil {
		return err
	}
	if err := a.userRepo.UpdatePassword(ctx, id, hash); err != nil {
		return customErrors.WrapInternal(err, "ChangePassword")
	}
	return nil
}

func (a *accountService) Authenticate(ctx context.Context, accessToken string) (model.Profile, token.Claims, error) {
	if accessToken == "" {
		return model.Profile{}, token.Claims{}, customErrors.NewUnauthorized("unauthorized request")
	}

	claims, err := a.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return model.Profile{}, token.Claims{}, customErrors.NewUnauthorized("invalid access token")
	}

	revoked, err := a.tokenRepo.IsAccessRevoked(ctx, claims.ID)
	if err != nil {
		return model.Profile{}, token.Claims{}, customErrors.WrapInternal(err, "Authenticate")
	}
	if revoked {
		metrics.TokenRejections.WithLabelValues(string(token.KindAccess), "revoked").Inc()
		return model.Profile{}, token.Claims{}, customErrors.NewUnauthorized("invalid access token")
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Profile{}, token.Claims{}, customErrors.NewUnauthorized("invalid access token")
	}
	user, err := a.userRepo.GetUserByID(ctx, uid)
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		return model.Profile{}, token.Claims{}, customErrors.NewUnauthorized("invalid access token")
	case err != nil:
		return model.Profile{}, token.Claims{}, customErrors.WrapInternal(err, "Authenticate")
	}
	return user.Profile(), claims, nil
}

func (a *accountService) CurrentUser(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	user, err := a.userRepo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, customErrors.ErrNotFound) {
			return model.Profile{}, err
		}
		return model.Profile{}, customErrors.WrapInternal(err, "CurrentUser")
	}
	return user.Profile(), nil
}

func (a *accountService) UpdateAccount(ctx context.Context, id uuid.UUID, dto dto.UpdateAccountDTO) (model.Profile, error) {
	if err := a.v.Struct(dto); err != nil {
		return model.Profile{}, customErrors.NewInvalidArgument(err.Error())
	}

	user, err := a.userRepo.UpdateProfile(ctx, id, strings.TrimSpace(dto.FullName), normalize(dto.Email))
	if err != nil {
		if errors.Is(err, customErrors.ErrAlreadyExists) || errors.Is(err, customErrors.ErrNotFound) {
			return model.Profile{}, err
		}
		return model.Profile{}, customErrors.WrapInternal(err, "UpdateAccount")
	}
	return user.Profile(), nil
}

func (a *accountService) UpdateAvatar(ctx context.Context, id uuid.UUID, localPath string) (model.Profile, error) {
	if localPath == "" {
		return model.Profile{}, customErrors.NewInvalidArgument("avatar file is missing")
	}
	url, err := a.media.Upload(ctx, localPath)
	if err != nil {
		return model.Profile{}, customErrors.WrapInternal(err, "error while uploading avatar")
	}
	return a.updateImages(ctx, id, url, "")
}

func (a *accountService) UpdateCoverImage(ctx context.Context, id uuid.UUID, localPath string) (model.Profile, error) {
	if localPath == "" {
		return model.Profile{}, customErrors.NewInvalidArgument("cover image file is missing")
	}
	url, err := a.media.Upload(ctx, localPath)
	if err != nil {
		return model.Profile{}, customErrors.WrapInternal(err, "error while uploading cover image")
	}
	return a.updateImages(ctx, id, "", url)
}

func (a *accountService) updateImages(ctx context.Context, id uuid.UUID, avatarURL, coverURL string) (model.Profile, error) {
	user, err := a.userRepo.UpdateImages(ctx, id, avatarURL, coverURL)
	if err != nil {
		if errors.Is(err, customErrors.ErrNotFound) {
			return model.Profile{}, err
		}
		return model.Profile{}, customErrors.WrapInternal(err, "UpdateImages")
	}
	return user.Profile(), nil
}

func (a *accountService) issueTokens(uid uuid.UUID) (model.TokenPair, error) {
	at, atExp, _, err := a.tokens.MintAccessToken(uid)
	if err != nil {
		return model.TokenPair{}, customErrors.WrapInternal(err, "MintAccessToken")
	}
	rt, rtExp, jti, err := a.tokens.MintRefreshToken(uid)
	if err != nil {
		return model.TokenPair{}, customErrors.WrapInternal(err, "MintRefreshToken")
	}

	now := time.Now()
	return model.TokenPair{
		AccessToken:     at,
		RefreshToken:    rt,
		AccessTTL:       atExp.Sub(now),
		RefreshTTL:      rtExp.Sub(now),
		UserId:          uid,
		RefreshTokenJTI: jti,
	}, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
