package middleware

import (
	"context"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type visitor struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimitPerIP keeps one token bucket per peer IP in a bounded LRU.
type RateLimitPerIP struct {
	mu       sync.Mutex
	visitors *lru.Cache[string, *visitor]
	limit    rate.Limit
	burst    int
}

// NewRateLimitPerIP drops visitors idle for longer than ttl until ctx is done.
func NewRateLimitPerIP(
	ctx context.Context,
	limit, burst int,
	cacheSize int,
	ttl time.Duration,
) *RateLimitPerIP {

	visitors, _ := lru.New[string, *visitor](cacheSize)
	rl := &RateLimitPerIP{visitors: visitors, limit: rate.Limit(limit), burst: burst}

	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictIdle(ttl)
			}
		}
	}()

	return rl
}

func (rl *RateLimitPerIP) evictIdle(ttl time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for _, key := range rl.visitors.Keys() {
		if v, ok := rl.visitors.Peek(key); ok && time.Since(v.last) > ttl {
			rl.visitors.Remove(key)
		}
	}
}

func (rl *RateLimitPerIP) allow(ctx context.Context) error {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		host = p.Addr.String()
	}

	rl.mu.Lock()
	v, ok := rl.visitors.Get(host)
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors.Add(host, v)
	}
	v.last = time.Now()
	rl.mu.Unlock()

	if !v.limiter.Allow() {
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return nil
}

func (rl *RateLimitPerIP) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := rl.allow(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (rl *RateLimitPerIP) Stream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := rl.allow(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
