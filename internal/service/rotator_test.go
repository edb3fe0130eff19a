package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/utils"
)

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.login(t, "admin.one")

	h.clock.Advance(time.Minute)
	next, err := h.svc.Refresh(ctx, first.Refresh.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.Refresh.Token == first.Refresh.Token {
		t.Fatal("refresh token was not replaced")
	}
	if next.Principal.ID != "u-admin" || next.Principal.CandidateID != "cand-1" {
		t.Fatalf("rotation changed the claims: %+v", next.Principal)
	}
	old, _ := h.tokens.byHash(utils.HashToken(first.Refresh.Token))
	if old.RevokedAt == nil || !old.RevokedAt.Equal(h.clock.Now()) {
		t.Fatalf("presented token not revoked at rotation time: %+v", old)
	}
	if h.tokens.live("u-admin") != 1 {
		t.Fatalf("expected one live token, got %d", h.tokens.live("u-admin"))
	}

	// The successor rotates in turn.
	if _, err := h.svc.Refresh(ctx, next.Refresh.Token); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
}

func TestRefreshWithRevokedTokenLocksOutUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stolen := h.login(t, "admin.one")
	laptop := h.login(t, "admin.one")
	bystander := h.login(t, "root")

	if _, err := h.svc.Refresh(ctx, stolen.Refresh.Token); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if h.tokens.live("u-admin") != 2 {
		t.Fatalf("expected two live tokens before replay, got %d", h.tokens.live("u-admin"))
	}

	_, outcome, err := h.svc.rotator.Rotate(ctx, stolen.Refresh.Token)
	if !errors.Is(err, apperr.ErrAuthentication) || !errors.Is(err, apperr.ErrReplayDetected) {
		t.Fatalf("expected replay authentication error, got %v", err)
	}
	if outcome != OutcomeRejectAndLockout {
		t.Fatalf("outcome = %s", outcome)
	}
	if n := h.tokens.live("u-admin"); n != 0 {
		t.Fatalf("expected every token of the user revoked, %d still live", n)
	}
	if row, _ := h.tokens.byHash(utils.HashToken(laptop.Refresh.Token)); row.RevokedAt == nil {
		t.Fatal("unrelated session of the same user survived")
	}
	if row, _ := h.tokens.byHash(utils.HashToken(bystander.Refresh.Token)); row.RevokedAt != nil {
		t.Fatal("another user's session was revoked")
	}

	ev, ok := h.events.find(model.ActionRefreshReplay)
	if !ok || ev.Severity != model.SeverityCritical || ev.ActorUserID != "u-admin" {
		t.Fatalf("replay not audited as critical: %+v", ev)
	}
	sweep, ok := h.events.find(model.ActionSessionsRevoked)
	if !ok || sweep.Metadata["revoked_count"] != int64(2) {
		t.Fatalf("mass revocation not audited: %+v", sweep)
	}
}

func TestRefreshWithUnknownTokenLocksOutUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, "admin.one")

	// Validly signed but never persisted.
	forged, _, err := h.signer.SignRefresh(model.Principal{ID: "u-admin", Username: "admin.one", Role: model.RoleAdmin, CandidateID: "cand-1"})
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	_, err = h.svc.Refresh(ctx, forged.Token)
	if !errors.Is(err, apperr.ErrReplayDetected) {
		t.Fatalf("expected replay classification, got %v", err)
	}
	if h.tokens.live("u-admin") != 0 {
		t.Fatal("unknown token must revoke all live tokens of the user")
	}
	if ev, ok := h.events.find(model.ActionRefreshUnknown); !ok || ev.Severity != model.SeverityCritical {
		t.Fatalf("unknown token not audited as critical: %+v", ev)
	}
}

func TestRefreshWithExpiredTokenRejectsQuietly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aging := h.login(t, "admin.one")
	h.clock.Advance(6 * 24 * time.Hour)
	fresh := h.login(t, "admin.one")

	h.clock.Advance(24 * time.Hour)
	_, outcome, err := h.svc.rotator.Rotate(ctx, aging.Refresh.Token)
	if !errors.Is(err, apperr.ErrAuthentication) || errors.Is(err, apperr.ErrReplayDetected) {
		t.Fatalf("expected plain authentication error, got %v", err)
	}
	if outcome != OutcomeReject {
		t.Fatalf("outcome = %s", outcome)
	}
	if row, _ := h.tokens.byHash(utils.HashToken(aging.Refresh.Token)); row.RevokedAt != nil {
		t.Fatal("expired token must not be revoked")
	}
	if row, _ := h.tokens.byHash(utils.HashToken(fresh.Refresh.Token)); row.RevokedAt != nil {
		t.Fatal("expiry must not cascade to other sessions")
	}
	if _, ok := h.events.find(model.ActionRefreshExpired); !ok {
		t.Fatalf("expiry not audited: %v", h.events.actions())
	}
}

func TestRefreshRejectsRowPastExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.login(t, "admin.one")
	other := h.login(t, "admin.one")

	// The row expired ahead of the JWT, e.g. after a TTL cut.
	h.tokens.mu.Lock()
	for _, r := range h.tokens.rows {
		if r.TokenHash == utils.HashToken(res.Refresh.Token) {
			r.ExpiresAt = h.clock.Now().Add(-time.Second)
		}
	}
	h.tokens.mu.Unlock()

	_, outcome, err := h.svc.rotator.Rotate(ctx, res.Refresh.Token)
	if !errors.Is(err, apperr.ErrAuthentication) || errors.Is(err, apperr.ErrReplayDetected) || outcome != OutcomeReject {
		t.Fatalf("expected quiet rejection, got %s / %v", outcome, err)
	}
	if h.tokens.live("u-admin") != 2 {
		t.Fatalf("no rows may change, live=%d", h.tokens.live("u-admin"))
	}
	_ = other
}

func TestRefreshWithGarbageTouchesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.login(t, "admin.one")
	access := res.Access.Token

	for _, raw := range []string{"", "garbage", access, res.Refresh.Token + "x"} {
		_, outcome, err := h.svc.rotator.Rotate(ctx, raw)
		if !errors.Is(err, apperr.ErrAuthentication) || errors.Is(err, apperr.ErrReplayDetected) || outcome != OutcomeReject {
			t.Fatalf("Rotate(%q) = %s / %v", raw, outcome, err)
		}
	}
	if h.tokens.live("u-admin") != 1 {
		t.Fatal("invalid tokens must not change storage")
	}
}

func TestConcurrentRefreshOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.login(t, "admin.one")

	gate := &sync.WaitGroup{}
	gate.Add(2)
	h.tokens.findGate = gate

	type result struct {
		sess Session
		err  error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := h.svc.Refresh(ctx, res.Refresh.Token)
			results <- result{s, err}
		}()
	}
	wg.Wait()
	close(results)
	h.tokens.findGate = nil

	var wins, losses int
	var winner Session
	for r := range results {
		if r.err == nil {
			wins++
			winner = r.sess
			continue
		}
		losses++
		if !errors.Is(r.err, apperr.ErrAuthentication) || errors.Is(r.err, apperr.ErrReplayDetected) {
			t.Fatalf("loser must see a plain authentication error, got %v", r.err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d, want 1/1", wins, losses)
	}
	if h.tokens.live("u-admin") != 1 {
		t.Fatalf("losing the race must not cascade, live=%d", h.tokens.live("u-admin"))
	}
	if row, ok := h.tokens.byHash(utils.HashToken(winner.Refresh.Token)); !ok || row.RevokedAt != nil {
		t.Fatal("winner's new token must be live")
	}
	if _, ok := h.events.find(model.ActionRefreshRaceLost); !ok {
		t.Fatalf("race loss not audited: %v", h.events.actions())
	}
	if _, ok := h.events.find(model.ActionSessionsRevoked); ok {
		t.Fatal("race loss triggered mass revocation")
	}
}

func TestRefreshWithoutSecretIsConfigurationError(t *testing.T) {
	h := newHarness(t)
	signer := utils.NewSigner("access-secret", "", time.Minute, time.Hour)
	r := NewRotator(signer, NewTokenIssuer(signer, h.tokens), h.tokens, h.svc.audit, h.svc.logger)
	if _, _, err := r.Rotate(context.Background(), "anything"); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
