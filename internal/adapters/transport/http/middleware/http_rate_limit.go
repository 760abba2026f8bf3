package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/response"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type visitor struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	last    time.Time
}

func (v *visitor) allow() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = time.Now()
	return v.limiter.Allow()
}

func (v *visitor) idleSince() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return time.Since(v.last)
}

// NewHTTPRateLimitPerIP limits requests per client IP, keeping at most cacheSize
// visitors. Visitors idle for longer than ttl are dropped until ctx is done.
func NewHTTPRateLimitPerIP(
	ctx context.Context,
	limit, burst, cacheSize int,
	ttl time.Duration,
) gin.HandlerFunc {

	visitors, _ := lru.New[string, *visitor](cacheSize)

	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, key := range visitors.Keys() {
					if v, ok := visitors.Peek(key); ok && v.idleSince() > ttl {
						visitors.Remove(key)
					}
				}
			}
		}
	}()

	var mu sync.Mutex
	return func(c *gin.Context) {
		host := c.ClientIP()

		mu.Lock()
		v, ok := visitors.Get(host)
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(limit), burst)}
			visitors.Add(host, v)
		}
		mu.Unlock()

		if !v.allow() {
			response.Error(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
