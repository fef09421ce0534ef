package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LocalLimiter keeps one token bucket per client in process memory.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLocalLimiter allows perMinute events per key, with bursts of the same size.
func NewLocalLimiter(perMinute int) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

// Allow reports whether key may proceed now.
func (l *LocalLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// CreateAccountRateLimit caps account creation per client IP. Counters live in
// Redis when available so every replica shares them; without Redis, or when
// Redis errors, the in-process limiter decides.
func CreateAccountRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	local := NewLocalLimiter(maxPerMin)
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		if cache == nil {
			return allowOrReject(c, local.Allow(ip))
		}

		key := "rl:create:" + ip
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return allowOrReject(c, local.Allow(ip))
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		return allowOrReject(c, cnt <= int64(maxPerMin))
	}
}

func allowOrReject(c *fiber.Ctx, allowed bool) error {
	if !allowed {
		return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
	}
	return c.Next()
}
