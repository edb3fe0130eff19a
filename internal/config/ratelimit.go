package config

import "time"

// RateLimitConfig drives the Redis token bucket in front of login, refresh
// and logout. A bucket holds Capacity tokens and regains RefillTokens every
// RefillInterval; idle buckets expire after TTL.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // "_" separated subset of ip, user, route
	Prefix         string
	Debug          bool // expose the bucket key in X-RateLimit-Key
}

func LoadRateLimitConfig() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 10),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 6*time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl:auth"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	// BURST is the older name for CAPACITY and wins when both are set.
	if burst := envInt("RATE_LIMIT_BURST", 0); burst > 0 {
		rl.Capacity = burst
	}
	return rl.normalized()
}

// normalized clamps nonsensical values. The TTL must outlive several refill
// steps or a bucket would reset to full before it ever refilled.
func (rl RateLimitConfig) normalized() RateLimitConfig {
	rl.Capacity = max(rl.Capacity, 1)
	rl.RefillTokens = max(rl.RefillTokens, 1)
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	rl.TTL = max(rl.TTL, 5*rl.RefillInterval)
	return rl
}
