package token

import (
	"errors"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	domain "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/token"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/metrics"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"time"
)

const leeway = 30 * time.Second

type IssuerImpl struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

func NewIssuer(cfg domain.Config) (*IssuerImpl, error) {
	switch {
	case len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0:
		return nil, customErrors.NewInvalidArgument("token secrets must be set")
	case string(cfg.AccessSecret) == string(cfg.RefreshSecret):
		return nil, customErrors.NewInvalidArgument("access and refresh secrets must differ")
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, customErrors.NewInvalidArgument("token TTLs must be positive")
	}

	return &IssuerImpl{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
	}, nil
}

func (j *IssuerImpl) MintAccessToken(userID uuid.UUID) (string, time.Time, string, error) {
	return j.mint(userID, domain.KindAccess, j.accessSecret, j.accessTTL)
}

func (j *IssuerImpl) MintRefreshToken(userID uuid.UUID) (string, time.Time, string, error) {
	return j.mint(userID, domain.KindRefresh, j.refreshSecret, j.refreshTTL)
}

func (j *IssuerImpl) VerifyAccessToken(raw string) (domain.Claims, error) {
	return j.verify(raw, domain.KindAccess, j.accessSecret)
}

func (j *IssuerImpl) VerifyRefreshToken(raw string) (domain.Claims, error) {
	return j.verify(raw, domain.KindRefresh, j.refreshSecret)
}

func (j *IssuerImpl) mint(userID uuid.UUID, kind domain.Kind, secret []byte, ttl time.Duration) (string, time.Time, string, error) {
	jti := uuid.NewString()
	now := time.Now()

	claims := domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, "", customErrors.WrapInternal(err, "sign "+string(kind)+" token")
	}

	return signed, claims.ExpiresAt.Time, jti, nil
}

func (j *IssuerImpl) verify(raw string, kind domain.Kind, secret []byte) (domain.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	var claims domain.Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Claims{}, reject(kind, "expired", domain.ErrExpired)
	case err != nil || !token.Valid:
		return domain.Claims{}, reject(kind, "malformed", domain.ErrMalformed)
	case claims.Kind != kind:
		return domain.Claims{}, reject(kind, "malformed", domain.ErrMalformed)
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return domain.Claims{}, reject(kind, "malformed", domain.ErrMalformed)
	}

	return claims, nil
}

func reject(kind domain.Kind, reason string, err error) error {
	metrics.TokenRejections.WithLabelValues(string(kind), reason).Inc()
	return err
}
