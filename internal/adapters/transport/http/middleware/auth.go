package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/response"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	AccessCookie = "accessToken"

	profileKey = "account.profile"
	claimsKey  = "account.claims"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.Profile, token.Claims, error)
}

// RequireAuth reads the access token from the cookie or a Bearer header and
// stores the resolved profile and claims on the context.
func RequireAuth(auth Authenticator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(AccessCookie)
		if raw == "" {
			raw = bearer(c.GetHeader("Authorization"))
		}

		profile, claims, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if customErrors.IsInternal(err) {
				log.Error("authenticate", zap.Error(err))
				response.Error(c, http.StatusInternalServerError, "internal server error")
				return
			}
			response.Error(c, http.StatusUnauthorized, "unauthorized request")
			return
		}

		c.Set(profileKey, profile)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func CurrentProfile(c *gin.Context) (model.Profile, bool) {
	v, ok := c.Get(profileKey)
	if !ok {
		return model.Profile{}, false
	}
	p, ok := v.(model.Profile)
	return p, ok
}

func CurrentClaims(c *gin.Context) (token.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return token.Claims{}, false
	}
	cl, ok := v.(token.Claims)
	return cl, ok
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
