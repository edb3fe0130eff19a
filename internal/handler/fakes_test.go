package handler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/guard"
	"github.com/iliyamo/campaign-session/internal/logging"
	"github.com/iliyamo/campaign-session/internal/middleware"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/service"
	"github.com/iliyamo/campaign-session/internal/utils"
)

type users map[string]model.User

func (u users) GetByUsername(_ context.Context, name string) (model.User, error) {
	if x, ok := u[name]; ok {
		return x, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (u users) GetByID(_ context.Context, id string) (model.User, error) {
	for _, x := range u {
		if x.ID == id {
			return x, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

type tokens struct {
	mu   sync.Mutex
	rows map[string]*model.RefreshToken
}

func (m *tokens) Create(_ context.Context, t *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.NewString()
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *tokens) FindByUserAndHash(_ context.Context, userID, hash string) (model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.TokenHash == hash {
			return *r, nil
		}
	}
	return model.RefreshToken{}, repository.ErrNotFound
}

func (m *tokens) Rotate(ctx context.Context, oldID string, at time.Time, next *model.RefreshToken) error {
	m.mu.Lock()
	r, ok := m.rows[oldID]
	if !ok || r.RevokedAt != nil {
		m.mu.Unlock()
		return repository.ErrAlreadyRevoked
	}
	r.RevokedAt = &at
	m.mu.Unlock()
	return m.Create(ctx, next)
}

func (m *tokens) revokeWhere(match func(*model.RefreshToken) bool, at time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if match(r) && r.RevokedAt == nil {
			r.RevokedAt = &at
			n++
		}
	}
	return n
}

func (m *tokens) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	return m.revokeWhere(func(r *model.RefreshToken) bool { return r.UserID == userID }, at), nil
}

func (m *tokens) RevokeByHash(_ context.Context, hash string, at time.Time) (int64, error) {
	return m.revokeWhere(func(r *model.RefreshToken) bool { return r.TokenHash == hash }, at), nil
}

type devices struct {
	mu   sync.Mutex
	rows []*model.TrustedDevice
}

func (m *devices) Create(_ context.Context, d *model.TrustedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.NewString()
	cp := *d
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *devices) FindByUserAndHash(_ context.Context, userID, hash string) (model.TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.UserID == userID && d.TokenHash == hash {
			return *d, nil
		}
	}
	return model.TrustedDevice{}, repository.ErrNotFound
}

func (m *devices) Touch(context.Context, string, time.Time) error { return nil }

func (m *devices) revokeWhere(match func(*model.TrustedDevice) bool, at time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.rows {
		if match(d) && d.RevokedAt == nil {
			d.RevokedAt = &at
			n++
		}
	}
	return n
}

func (m *devices) RevokeByHash(_ context.Context, hash string, at time.Time) (int64, error) {
	return m.revokeWhere(func(d *model.TrustedDevice) bool { return d.TokenHash == hash }, at), nil
}

func (m *devices) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	return m.revokeWhere(func(d *model.TrustedDevice) bool { return d.UserID == userID }, at), nil
}

type discardEvents struct{}

func (discardEvents) Record(context.Context, model.SecurityEvent) error { return nil }

const password = "correct horse battery staple"

var passwordHash = sync.OnceValue(func() string {
	h, err := utils.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return h
})

type app struct {
	e      *echo.Echo
	signer *utils.Signer
	tokens *tokens
	devs   *devices
}

// newApp wires the auth routes the way the router does, over in-memory
// stores.
func newApp(t *testing.T) *app {
	t.Helper()
	a := &app{
		e:      echo.New(),
		tokens: &tokens{rows: map[string]*model.RefreshToken{}},
		devs:   &devices{},
	}
	a.signer = utils.NewSigner("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	logger := logging.NewWithOutput("test", "off", io.Discard)
	audit := service.NewAuditor(discardEvents{}, logger)
	svc := service.NewSessionService(service.SessionDeps{
		Signer: a.signer,
		Users: users{
			"admin.one": {ID: "u-admin", Username: "admin.one", PasswordHash: passwordHash(), Role: model.RoleAdmin, CandidateID: "cand-1", IsActive: true},
			"mfa.user":  {ID: "u-mfa", Username: "mfa.user", PasswordHash: passwordHash(), Role: model.RoleSubUser, CandidateID: "cand-1", MFAEnabled: true, IsActive: true},
		},
		Tokens:    a.tokens,
		Devices:   a.devs,
		Audit:     audit,
		Logger:    logger,
		DeviceTTL: 30 * 24 * time.Hour,
	})
	h := NewAuthHandler(svc, CookieConfig{Secure: true})

	a.e.HTTPErrorHandler = ErrorHandler(a.e)
	a.e.Logger = logger
	a.e.Use(middleware.Authenticate(a.signer, audit))
	g := a.e.Group("/v1/auth")
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.POST("/trusted-devices", middleware.Guarded(guard.RouteMeta{}, audit, h.TrustDevice))
	a.e.GET("/v1/me", middleware.Guarded(guard.RouteMeta{}, audit, h.Me))
	return a
}
