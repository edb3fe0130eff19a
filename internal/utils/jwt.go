package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
)

// TokenTypeRefresh is the value of the "type" claim on refresh tokens.
const TokenTypeRefresh = "refresh"

var errBadClaims = errors.New("token claims incomplete")

// Claims is the payload of both token kinds. Access tokens leave Type empty;
// refresh tokens carry Type="refresh" and a fresh jti in RegisteredClaims.ID.
type Claims struct {
	Username    string     `json:"username"`
	Role        model.Role `json:"role"`
	CandidateID string     `json:"candidateId,omitempty"`
	Type        string     `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the identity encoded in the claims. MFAEnabled is not
// carried in tokens.
func (c *Claims) Principal() model.Principal {
	return model.Principal{
		ID:          c.Subject,
		Username:    c.Username,
		Role:        c.Role,
		CandidateID: c.CandidateID,
	}
}

// SignedToken is a serialized JWT together with its expiry.
type SignedToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Signer mints and verifies HS256 tokens. Access and refresh tokens use
// separate secrets so one kind can never be replayed as the other.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewSigner builds a Signer. Empty secrets are accepted here and reported as
// apperr.ErrConfiguration by every call that needs them.
func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Tests use it to step past expiry.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	if now != nil {
		s.now = now
	}
	return s
}

// AccessTTL returns the configured access token lifetime.
func (s *Signer) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *Signer) RefreshTTL() time.Duration { return s.refreshTTL }

// SignAccess mints a short-lived access token for p.
func (s *Signer) SignAccess(p model.Principal) (SignedToken, error) {
	if len(s.accessSecret) == 0 {
		return SignedToken{}, fmt.Errorf("%w: access signing secret is not set", apperr.ErrConfiguration)
	}
	return s.sign(s.accessSecret, p, "", "", s.accessTTL)
}

// SignRefresh mints a refresh token for p with a fresh jti, returned as the
// second value.
func (s *Signer) SignRefresh(p model.Principal) (SignedToken, string, error) {
	if len(s.refreshSecret) == 0 {
		return SignedToken{}, "", fmt.Errorf("%w: refresh signing secret is not set", apperr.ErrConfiguration)
	}
	jti := uuid.NewString()
	tok, err := s.sign(s.refreshSecret, p, TokenTypeRefresh, jti, s.refreshTTL)
	return tok, jti, err
}

func (s *Signer) sign(secret []byte, p model.Principal, typ, jti string, ttl time.Duration) (SignedToken, error) {
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Username:    p.Username,
		Role:        p.Role,
		CandidateID: p.CandidateID,
		Type:        typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return SignedToken{}, fmt.Errorf("signing token: %w", err)
	}
	// Report the expiry the token actually carries (second precision).
	return SignedToken{Token: signed, Exp: claims.ExpiresAt.Time}, nil
}

// ParseAccess verifies an access token. Verification fails at and after the
// exp instant regardless of signature validity.
func (s *Signer) ParseAccess(raw string) (*Claims, error) {
	if len(s.accessSecret) == 0 {
		return nil, fmt.Errorf("%w: access signing secret is not set", apperr.ErrConfiguration)
	}
	claims, err := s.parse(s.accessSecret, raw)
	if err != nil {
		return nil, err
	}
	if claims.Type != "" {
		return nil, apperr.Unauthenticated("refresh token presented as access token")
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token's signature, expiry and type. It
// says nothing about whether the token is still live in storage.
func (s *Signer) ParseRefresh(raw string) (*Claims, error) {
	if len(s.refreshSecret) == 0 {
		return nil, fmt.Errorf("%w: refresh signing secret is not set", apperr.ErrConfiguration)
	}
	claims, err := s.parse(s.refreshSecret, raw)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh || claims.ID == "" {
		return nil, apperr.Unauthenticated("not a refresh token")
	}
	return claims, nil
}

func (s *Signer) parse(secret []byte, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Unauthenticated("token missing")
	}
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(_ *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrAuthentication, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, apperr.Unauthenticated("invalid token")
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: %w", apperr.ErrAuthentication, errBadClaims)
	}
	return claims, nil
}
