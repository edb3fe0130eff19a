package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campaign-session/internal/config"
)

// bucketScript refills the bucket stored at KEYS[1] by whole intervals,
// then tries to take one token. State lives in a hash so a key can be
// inspected with HGETALL. Returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
local now      = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill   = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local ttl_ms   = tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local stamp  = tonumber(redis.call('HGET', KEYS[1], 'stamp'))
if tokens == nil or stamp == nil then
	tokens, stamp = capacity, now
end

local steps = math.floor(math.max(0, now - stamp) / interval)
if steps > 0 then
	tokens = math.min(capacity, tokens + steps * refill)
	stamp = stamp + steps * interval
end

local allowed, wait = 0, 0
if tokens >= 1 then
	allowed, tokens = 1, tokens - 1
else
	wait = math.max(0, interval - (now - stamp))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('PEXPIRE', KEYS[1], ttl_ms)
return {allowed, tokens, wait}
`)

// bucketDecision is one evaluation of the token bucket.
type bucketDecision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// takeToken runs the bucket script for key.
func takeToken(ctx context.Context, rdb redis.Scripter, cfg config.RateLimitConfig, key string, now time.Time) (bucketDecision, error) {
	res, err := bucketScript.Run(ctx, rdb, []string{key},
		now.UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		max(cfg.RefillInterval.Milliseconds(), 1),
		cfg.TTL.Milliseconds(),
	).Result()
	if err != nil {
		return bucketDecision{}, err
	}
	return parseDecision(res)
}

// parseDecision decodes the script reply. Lua numbers arrive as int64.
func parseDecision(res any) (bucketDecision, error) {
	vals, ok := res.([]any)
	if !ok || len(vals) != 3 {
		return bucketDecision{}, fmt.Errorf("unexpected limiter reply %#v", res)
	}
	nums := make([]int64, len(vals))
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return bucketDecision{}, fmt.Errorf("unexpected limiter reply %#v", res)
		}
		nums[i] = n
	}
	return bucketDecision{
		Allowed:    nums[0] == 1,
		Remaining:  nums[1],
		RetryAfter: time.Duration(nums[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits the credential endpoints per key (see
// buildRateKey). It fails open: without Redis, or when the script errors,
// requests pass. onLimited, if set, runs for every refused request.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, onLimited func()) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			d, err := takeToken(c.Request().Context(), rdb, cfg, key, time.Now())
			if err != nil {
				c.Logger().Warnj(log.JSON{"event": "ratelimit_unavailable", "key": key, "error": err.Error()})
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.Allowed {
				return next(c)
			}

			secs := int((d.RetryAfter + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			if onLimited != nil {
				onLimited()
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"retry_after": secs,
			})
		}
	}
}

// buildRateKey composes the bucket key from cfg.KeyStrategy, a "_"
// separated list of ip, user and route. Login runs before any principal
// exists, so strategies using the user see "anon" there.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strategy == "" {
		strategy = "ip_user_route"
	}
	parts := []string{cfg.Prefix}
	for _, part := range strings.Split(strategy, "_") {
		switch part {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			parts = append(parts, "ip", ip)
		case "user":
			parts = append(parts, "user", userID(c))
		case "route":
			parts = append(parts, "route", c.Request().Method+" "+c.Path())
		}
	}
	return strings.Join(parts, ":")
}
