package middleware

import (
	"net/http"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/response"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// NewCredentialLimiter builds an in-memory limiter from a formatted rate such as "5-M".
func NewCredentialLimiter(formatted string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), r), nil
}

// CredentialRateLimit guards login and refresh against brute force, keyed by client IP.
func CredentialRateLimit(l *limiter.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		lctx, err := l.Get(c.Request.Context(), ip)
		if err != nil {
			log.Error("rate limit lookup", zap.String("ip", ip), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "internal server error")
			return
		}

		if lctx.Reached {
			log.Warn("credential rate limit exceeded",
				zap.String("ip", ip),
				zap.Int64("limit", lctx.Limit),
				zap.String("path", c.Request.URL.Path),
			)
			response.Error(c, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		c.Next()
	}
}
