package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/billingportal/internal/config"
	"golang.org/x/time/rate"
	"go.uber.org/zap"
)

const (
	keyLoginClient = "portal:login:%s"
	keyTopUpLock   = "portal:topup:%d"

	idleLimiterTTL = 30 * time.Minute
)

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter throttles credential submissions per client. It uses the redis
// token bucket when one is configured and in-process limiters otherwise.
type LoginLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger

	mu      sync.Mutex
	clients map[string]*localLimiter
}

func NewLoginLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *LoginLimiter {
	perSecond := cfg.LoginRatePerMinute / 60
	if perSecond <= 0 {
		perSecond = 10.0 / 60
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginLimiter{
		bucket:  bucket,
		rate:    perSecond,
		burst:   burst,
		log:     log,
		clients: make(map[string]*localLimiter),
	}
}

// Allow consumes one attempt for client. Redis errors fail open to the local limiter.
func (l *LoginLimiter) Allow(ctx context.Context, client string) *RateLimitResult {
	client = strings.TrimSpace(client)
	if client == "" {
		client = "unknown"
	}
	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyLoginClient, client), l.rate, l.burst)
		if err == nil {
			return res
		}
		l.log.Warn("redis rate limit unavailable, using local limiter", zap.Error(err))
	}
	return l.allowLocal(client)
}

func (l *LoginLimiter) allowLocal(client string) *RateLimitResult {
	l.mu.Lock()
	entry, ok := l.clients[client]
	if !ok {
		entry = &localLimiter{limiter: rate.NewLimiter(rate.Limit(l.rate), l.burst)}
		l.clients[client] = entry
	}
	now := time.Now()
	entry.lastSeen = now
	l.mu.Unlock()

	res := &RateLimitResult{Limit: l.burst}
	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		res.RetryAfter = delay
		return res
	}
	res.Allowed = true
	res.Remaining = int(entry.limiter.TokensAt(now))
	return res
}

// Sweep drops local limiters idle for longer than idleLimiterTTL.
func (l *LoginLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, entry := range l.clients {
		if now.Sub(entry.lastSeen) > idleLimiterTTL {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// TopUpLockKey is the lease serializing wallet writes for one user.
func TopUpLockKey(userID int64) string {
	return fmt.Sprintf(keyTopUpLock, userID)
}
