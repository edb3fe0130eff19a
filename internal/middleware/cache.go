package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campaign-session/internal/config"
)

// cachedResponse is the value stored under a cache key.
type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h,omitempty"`
	Body   []byte      `json:"b,omitempty"`
}

func (r cachedResponse) marshal() ([]byte, error) { return json.Marshal(r) }

func unmarshalCached(bs []byte) (cachedResponse, bool) {
	var r cachedResponse
	if err := json.Unmarshal(bs, &r); err != nil || r.Status == 0 {
		return cachedResponse{}, false
	}
	return r, true
}

// replay writes a stored response. Content-Length is recomputed by the
// server.
func (r cachedResponse) replay(resp *echo.Response) {
	h := resp.Header()
	for k, vals := range r.Header {
		if http.CanonicalHeaderKey(k) == echo.HeaderContentLength {
			continue
		}
		h[k] = append(h[k], vals...)
	}
	h.Set("X-Cache", "HIT")
	resp.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		_, _ = resp.Write(r.Body)
	}
}

// bodyRecorder tees the response into buf, keeping at most limit bytes.
// written counts every byte so an overflow can be detected afterwards.
type bodyRecorder struct {
	http.ResponseWriter
	status  int
	limit   int64
	written int64
	buf     bytes.Buffer
}

func (w *bodyRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	keep := int64(len(b))
	if w.limit > 0 {
		keep = max(0, min(keep, w.limit-w.written))
	}
	w.buf.Write(b[:keep])
	w.written += int64(len(b))
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) overflowed() bool { return w.limit > 0 && w.written > w.limit }

// cacheKeyFrom derives the cache key for a request from cfg.KeyStrategy.
// Reference data is shared by all tenants, so keys carry no user.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	// The route template alone would collide for /:kind and /:kind/:id.
	var route strings.Builder
	route.WriteString(c.Path())
	for _, name := range c.ParamNames() {
		route.WriteString("|" + name + "=" + c.Param(name))
	}

	strategy := strings.ToLower(cfg.KeyStrategy)
	var fields []string
	if strings.HasPrefix(strategy, "method_") {
		fields = append(fields, "method", r.Method)
	}
	fields = append(fields, "route", route.String())
	if strategy == "" || strings.HasSuffix(strategy, "_query") {
		fields = append(fields, "q", r.URL.RawQuery)
	}

	sum := sha1.Sum([]byte(strings.Join(fields, ":")))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache caches 200 responses to reference-data reads, headers
// included, so a hit is indistinguishable from a miss apart from X-Cache.
// Without Redis it is a no-op, and Redis errors fall through to the handler.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if hit, ok := unmarshalCached(bs); ok {
					hit.replay(c.Response())
					return nil
				}
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflowed() {
				return nil
			}

			stored := cachedResponse{Status: rec.status, Header: c.Response().Header().Clone(), Body: rec.buf.Bytes()}
			stored.Header.Del("X-Cache")
			if bs, err := stored.marshal(); err == nil {
				// The client may already be gone; the entry is still valid.
				_ = rdb.SetEx(context.WithoutCancel(ctx), key, bs, ttl).Err()
			}
			return nil
		}
	}
}
