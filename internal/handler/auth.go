package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/guard"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/service"
)

const requestTimeout = 5 * time.Second

// AuthHandler serves login, refresh, logout, "who am I" and trusted-device
// enrolment. Tokens travel in cookies; the JSON body carries them as well
// for non-browser clients.
type AuthHandler struct {
	Sessions *service.SessionService
	Cookies  CookieConfig
}

func NewAuthHandler(s *service.SessionService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{Sessions: s, Cookies: cookies}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
	DeviceToken  string `json:"trusted_device_token"`
}
type trustReq struct {
	Label string `json:"label"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type sessionResp struct {
	User        model.Principal `json:"user"`
	Access      tokenPart       `json:"access"`
	Refresh     tokenPart       `json:"refresh"`
	MFARequired bool            `json:"mfa_required"`
}

func toResp(s service.Session, mfa bool) sessionResp {
	return sessionResp{
		User:        s.Principal,
		Access:      tokenPart{Token: s.Access.Token, Expires: s.Access.Exp},
		Refresh:     tokenPart{Token: s.Refresh.Token, Expires: s.Refresh.Exp},
		MFARequired: mfa,
	}
}

func (h *AuthHandler) setSession(c echo.Context, s service.Session) {
	signer := h.Sessions.Signer()
	h.Cookies.set(c, AccessCookie, s.Access.Token, "/", signer.AccessTTL())
	h.Cookies.set(c, RefreshCookie, s.Refresh.Token, refreshCookiePath, signer.RefreshTTL())
}

func (h *AuthHandler) clearSession(c echo.Context) {
	h.Cookies.clear(c, AccessCookie, "/")
	h.Cookies.clear(c, RefreshCookie, refreshCookiePath)
}

// Login verifies username/password and opens a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid body")
	}
	req.Username = strings.TrimSpace(req.Username)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Sessions.Login(ctx, req.Username, req.Password, cookieValue(c, DeviceCookie))
	if err != nil {
		return err
	}
	h.setSession(c, res.Session)
	return c.JSON(http.StatusOK, toResp(res.Session, res.MFARequired))
}

// Refresh rotates the presented refresh token. The cookie wins over the
// body. Every failure clears the session cookies.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := cookieValue(c, RefreshCookie)
	if raw == "" {
		var req refreshReq
		if err := c.Bind(&req); err != nil {
			return badRequest("invalid body")
		}
		raw = req.RefreshToken
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Refresh(ctx, raw)
	if err != nil {
		h.clearSession(c)
		return err
	}
	h.setSession(c, sess)
	return c.JSON(http.StatusOK, toResp(sess, false))
}

// Logout revokes whatever tokens were presented and clears all session
// cookies. It succeeds even for unknown or already revoked tokens.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	_ = c.Bind(&req) // an empty or malformed body just means no body tokens
	refresh := cookieValue(c, RefreshCookie)
	if refresh == "" {
		refresh = req.RefreshToken
	}
	device := cookieValue(c, DeviceCookie)
	if device == "" {
		device = req.DeviceToken
	}

	h.Sessions.Logout(c.Request().Context(), refresh, device)

	h.clearSession(c)
	h.Cookies.clear(c, DeviceCookie, "/")
	return c.NoContent(http.StatusNoContent)
}

// Me returns the current principal, re-read from storage.
func (h *AuthHandler) Me(c echo.Context, rc guard.RequestContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	p, err := h.Sessions.Me(ctx, rc.Principal)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": p, "candidateId": rc.CandidateID, "global": rc.Global})
}

// TrustDevice enrols the calling browser as a trusted device.
func (h *AuthHandler) TrustDevice(c echo.Context, rc guard.RequestContext) error {
	if !rc.Authenticated() {
		return apperr.Unauthenticated("authentication required")
	}
	var req trustReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	devices := h.Sessions.Devices()
	raw, d, err := devices.Issue(ctx, rc.Principal.ID, strings.TrimSpace(req.Label))
	if err != nil {
		return err
	}
	h.Cookies.set(c, DeviceCookie, raw, "/", devices.TTL())
	return c.JSON(http.StatusCreated, echo.Map{"id": d.ID, "label": d.Label, "expires": d.ExpiresAt})
}

// DistrustDevices revokes every trusted device of the caller.
func (h *AuthHandler) DistrustDevices(c echo.Context, rc guard.RequestContext) error {
	if !rc.Authenticated() {
		return apperr.Unauthenticated("authentication required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Sessions.Devices().RevokeAll(ctx, rc.Principal.ID)
	if err != nil {
		return err
	}
	h.Cookies.clear(c, DeviceCookie, "/")
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}
