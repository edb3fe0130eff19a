package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/campaign-session/internal/logging"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/utils"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memTokens is an in-memory RefreshStore. Rotate is a compare-and-swap
// under one mutex, matching the conditional UPDATE of the MySQL repo.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]*model.RefreshToken

	// findGate, when set, holds every FindByUserAndHash after it has copied
	// the row, until the group reaches zero. Concurrent callers then all hold
	// an unrevoked snapshot before anyone rotates.
	findGate *sync.WaitGroup
}

func newMemTokens() *memTokens { return &memTokens{rows: map[string]*model.RefreshToken{}} }

func (m *memTokens) Create(_ context.Context, t *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(t)
}

func (m *memTokens) insertLocked(t *model.RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *memTokens) FindByUserAndHash(_ context.Context, userID, hash string) (model.RefreshToken, error) {
	row, err := m.find(userID, hash)
	if m.findGate != nil {
		m.findGate.Done()
		m.findGate.Wait()
	}
	return row, err
}

func (m *memTokens) find(userID, hash string) (model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.TokenHash == hash {
			return *r, nil
		}
	}
	return model.RefreshToken{}, repository.ErrNotFound
}

func (m *memTokens) Rotate(_ context.Context, oldID string, at time.Time, next *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[oldID]
	if !ok || r.RevokedAt != nil {
		return repository.ErrAlreadyRevoked
	}
	r.RevokedAt = &at
	return m.insertLocked(next)
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.UserID == userID && r.RevokedAt == nil {
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.TokenHash == hash && r.RevokedAt == nil {
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memTokens) byHash(hash string) (model.RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.TokenHash == hash {
			return *r, true
		}
	}
	return model.RefreshToken{}, false
}

func (m *memTokens) live(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.UserID == userID && r.RevokedAt == nil {
			n++
		}
	}
	return n
}

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memDevices struct {
	mu   sync.Mutex
	rows map[string]*model.TrustedDevice
}

func newMemDevices() *memDevices { return &memDevices{rows: map[string]*model.TrustedDevice{}} }

func (m *memDevices) Create(_ context.Context, d *model.TrustedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *memDevices) FindByUserAndHash(_ context.Context, userID, hash string) (model.TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.UserID == userID && d.TokenHash == hash {
			return *d, nil
		}
	}
	return model.TrustedDevice{}, repository.ErrNotFound
}

func (m *memDevices) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok && d.RevokedAt == nil {
		d.LastUsedAt = &at
	}
	return nil
}

func (m *memDevices) RevokeByHash(_ context.Context, hash string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.rows {
		if d.TokenHash == hash && d.RevokedAt == nil {
			d.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memDevices) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.rows {
		if d.UserID == userID && d.RevokedAt == nil {
			d.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

type memUsers struct{ byName map[string]model.User }

func (m memUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	u, ok := m.byName[username]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	for _, u := range m.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

type memEvents struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (m *memEvents) Record(_ context.Context, ev model.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memEvents) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Action)
	}
	return out
}

func (m *memEvents) find(action string) (model.SecurityEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.Action == action {
			return ev, true
		}
	}
	return model.SecurityEvent{}, false
}

const testPassword = "correct horse battery staple"

var testPasswordHash = sync.OnceValue(func() string {
	h, err := utils.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return h
})

// harness is a SessionService over in-memory stores sharing one clock.
type harness struct {
	clock   *testClock
	tokens  *memTokens
	devices *memDevices
	events  *memEvents
	users   memUsers
	signer  *utils.Signer
	svc     *SessionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   &testClock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
		tokens:  newMemTokens(),
		devices: newMemDevices(),
		events:  &memEvents{},
	}
	hash := testPasswordHash()
	h.users = memUsers{byName: map[string]model.User{
		"admin.one": {ID: "u-admin", Username: "admin.one", PasswordHash: hash, Role: model.RoleAdmin, CandidateID: "cand-1", IsActive: true},
		"root":      {ID: "u-root", Username: "root", PasswordHash: hash, Role: model.RoleSuperAdmin, IsActive: true},
		"mfa.user":  {ID: "u-mfa", Username: "mfa.user", PasswordHash: hash, Role: model.RoleSubUser, CandidateID: "cand-1", MFAEnabled: true, IsActive: true},
		"gone":      {ID: "u-gone", Username: "gone", PasswordHash: hash, Role: model.RoleSubUser, CandidateID: "cand-2", IsActive: false},
	}}
	h.signer = utils.NewSigner("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour).WithClock(h.clock.Now)
	logger := logging.NewWithOutput("test", "error", io.Discard)
	audit := NewAuditor(h.events, logger, WithAuditClock(h.clock.Now))
	h.svc = NewSessionService(SessionDeps{
		Signer:    h.signer,
		Users:     h.users,
		Tokens:    h.tokens,
		Devices:   h.devices,
		Audit:     audit,
		Logger:    logger,
		DeviceTTL: 30 * 24 * time.Hour,
		Now:       h.clock.Now,
	})
	return h
}

func (h *harness) login(t *testing.T, username string) LoginResult {
	t.Helper()
	res, err := h.svc.Login(context.Background(), username, testPassword, "")
	if err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
	return res
}
