package config

import "time"

// CacheConfig controls the Redis response cache on reference-data reads.
// Geography only changes through offline imports, so entries may live for
// minutes; writes bypass the cache entirely.
type CacheConfig struct {
	Enabled bool
	// Methods holds upper-case HTTP methods eligible for caching.
	Methods map[string]bool
	TTL     time.Duration
	// KeyStrategy is one of route, route_query, method_route or
	// method_route_query.
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheMaxBody = 1 << 20
)

func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      map[string]bool{},
		TTL:          envDur("CACHE_TTL", defaultCacheTTL),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "cache:ref"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", defaultCacheMaxBody),
	}
	for _, m := range envList("CACHE_METHODS", "GET") {
		cfg.Methods[m] = true
	}
	return cfg
}
