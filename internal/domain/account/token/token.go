package token

import (
	"errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"time"
)

var (
	// ErrMalformed covers bad format, bad signature, wrong algorithm and wrong token kind.
	ErrMalformed = errors.New("token malformed")
	ErrExpired   = errors.New("token expired")
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"typ"`
}

type Config struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Issuer        string
}

type Issuer interface {
	MintAccessToken(userID uuid.UUID) (token string, exp time.Time, jti string, err error)
	MintRefreshToken(userID uuid.UUID) (token string, exp time.Time, jti string, err error)
	VerifyAccessToken(token string) (claims Claims, err error)
	VerifyRefreshToken(token string) (claims Claims, err error)
}
