package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/campaign-session/internal/apperr"
)

// Config holds all runtime configuration values. It is built once by Load
// at process start and handed to each component; nothing below cmd/ reads
// the environment on its own.
type Config struct {
	Env      string // application environment (e.g. "dev", "production")
	Port     string // HTTP port to listen on
	LogLevel string // debug | info | warn | error

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	AccessSecret         string // HMAC secret for access tokens
	RefreshSecret        string // HMAC secret for refresh tokens
	AccessTTLMin         int    // access token time-to-live in minutes
	RefreshTTLDays       int    // refresh token time-to-live in days
	TrustedDeviceTTLDays int    // trusted-device token time-to-live in days

	CookieDomain string // Domain attribute for session cookies (empty = host-only)
	CookieSecure bool   // Secure attribute for session cookies

	MasterDataLockEnabled bool // write-protect reference geography
	MasterDataLockBypass  bool // operator override for offline import tooling

	RabbitURL string // broker for security-event fan-out (empty disables publishing)

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// TrustedDeviceTTL returns the trusted-device token lifetime.
func (c Config) TrustedDeviceTTL() time.Duration {
	return time.Duration(c.TrustedDeviceTTLDays) * 24 * time.Hour
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Load reads the optional .env file and then the process environment.
// Missing database settings are returned as an error; missing signing
// secrets are not, see Validate.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	env := envStr("APP_ENV", "dev")
	cfg := Config{
		Env:      env,
		Port:     envStr("APP_PORT", "8080"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		DBUser: os.Getenv("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: os.Getenv("DB_HOST"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: os.Getenv("DB_NAME"),

		AccessSecret:         strings.TrimSpace(os.Getenv("ACCESS_TOKEN_SECRET")),
		RefreshSecret:        strings.TrimSpace(os.Getenv("REFRESH_TOKEN_SECRET")),
		AccessTTLMin:         envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:       envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		TrustedDeviceTTLDays: envInt("TRUSTED_DEVICE_TTL_DAYS", 30),

		CookieDomain: os.Getenv("COOKIE_DOMAIN"),

		MasterDataLockEnabled: envBool("MASTER_DATA_LOCK_ENABLED", true),
		MasterDataLockBypass:  envBool("MASTER_DATA_LOCK_BYPASS", false),

		RabbitURL: envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),

		Redis:     LoadRedisConfig(),
		RateLimit: LoadRateLimitConfig(),
		Cache:     LoadCacheConfig(),
	}
	cfg.CookieSecure = envBool("COOKIE_SECURE", cfg.IsProduction())

	if cfg.AccessTTLMin <= 0 {
		cfg.AccessTTLMin = 15
	}
	if cfg.RefreshTTLDays <= 0 {
		cfg.RefreshTTLDays = 7
	}
	if cfg.TrustedDeviceTTLDays <= 0 {
		cfg.TrustedDeviceTTLDays = 30
	}

	var missing []string
	for key, v := range map[string]string{"DB_USER": cfg.DBUser, "DB_HOST": cfg.DBHost, "DB_NAME": cfg.DBName} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return cfg, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// Validate reports missing signing secrets as a configuration error.
func (c Config) Validate() error {
	var errs []error
	if c.AccessSecret == "" {
		errs = append(errs, fmt.Errorf("%w: ACCESS_TOKEN_SECRET is not set", apperr.ErrConfiguration))
	}
	if c.RefreshSecret == "" {
		errs = append(errs, fmt.Errorf("%w: REFRESH_TOKEN_SECRET is not set", apperr.ErrConfiguration))
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, fmt.Errorf("%w: access and refresh secrets must differ", apperr.ErrConfiguration))
	}
	return errors.Join(errs...)
}
