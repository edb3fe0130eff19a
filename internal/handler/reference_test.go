package handler

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/guard"
	"github.com/iliyamo/campaign-session/internal/logging"
	"github.com/iliyamo/campaign-session/internal/middleware"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/service"
	"github.com/iliyamo/campaign-session/internal/utils"
)

type refApp struct {
	e      *echo.Echo
	mock   sqlmock.Sqlmock
	signer *utils.Signer
}

func newRefApp(t *testing.T, lock repository.LockConfig) *refApp {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := logging.NewWithOutput("test", "off", io.Discard)
	audit := service.NewAuditor(discardEvents{}, logger)
	signer := utils.NewSigner("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	h := NewReferenceHandler(repository.NewReferenceRepo(db, lock, repository.WithLockLogger(logger)))

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(e)
	e.Logger = logger
	e.Use(middleware.Authenticate(signer, audit))
	anyone := guard.RouteMeta{}
	admins := guard.Roles(model.RoleSuperAdmin)
	e.GET("/v1/reference/:kind", middleware.Guarded(anyone, audit, h.List))
	e.GET("/v1/reference/:kind/:id", middleware.Guarded(anyone, audit, h.Get))
	e.POST("/v1/reference/:kind", middleware.Guarded(admins, audit, h.Create))
	e.PUT("/v1/reference/:kind/:id", middleware.Guarded(admins, audit, h.Update))
	e.DELETE("/v1/reference/:kind/:id", middleware.Guarded(admins, audit, h.Delete))
	return &refApp{e: e, mock: mock, signer: signer}
}

func (a *refApp) do(t *testing.T, method, path, body string, p *model.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if p != nil {
		tok, err := a.signer.SignAccess(*p)
		if err != nil {
			t.Fatalf("SignAccess: %v", err)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

var (
	superAdmin = &model.Principal{ID: "u-root", Username: "root", Role: model.RoleSuperAdmin}
	subUser    = &model.Principal{ID: "u-sub", Username: "worker", Role: model.RoleSubUser, CandidateID: "cand-1"}
)

func TestReferenceWritesAreLocked(t *testing.T) {
	a := newRefApp(t, repository.LockConfig{Enabled: true})
	body := `{"code":"KL","name":"Kerala"}`

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/v1/reference/state"},
		{http.MethodPut, "/v1/reference/state/s-1"},
		{http.MethodDelete, "/v1/reference/ward/w-1"},
	} {
		rec := a.do(t, tc.method, tc.path, body, superAdmin)
		if rec.Code != http.StatusLocked {
			t.Fatalf("%s %s = %d %s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}
	if err := a.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReferenceWritesNeedSuperAdmin(t *testing.T) {
	a := newRefApp(t, repository.LockConfig{Enabled: false})
	if rec := a.do(t, http.MethodPost, "/v1/reference/state", `{"code":"KL","name":"Kerala"}`, subUser); rec.Code != http.StatusForbidden {
		t.Fatalf("sub user write = %d", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/v1/reference/state", `{"code":"KL","name":"Kerala"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous write = %d", rec.Code)
	}
}

func TestReferenceCreateWhenUnlocked(t *testing.T) {
	a := newRefApp(t, repository.LockConfig{Enabled: false})
	a.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reference_entities")).
		WithArgs(sqlmock.AnyArg(), "state", "KL", "Kerala", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := a.do(t, http.MethodPost, "/v1/reference/state", `{"code":"KL","name":"Kerala"}`, superAdmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	if err := a.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReferenceReads(t *testing.T) {
	a := newRefApp(t, repository.LockConfig{Enabled: true})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "kind", "code", "name", "parent_id", "attributes", "created_at", "updated_at"}
	a.mock.ExpectQuery(regexp.QuoteMeta("FROM reference_entities WHERE kind=? AND parent_id=? ORDER BY code LIMIT ? OFFSET ?")).
		WithArgs("ward", "lb-1", 20, 40).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("w-1", "ward", "KL-TVM-LB-W1", "Ward 1", "lb-1", nil, now, now).
			AddRow("w-2", "ward", "KL-TVM-LB-W2", "Ward 2", "lb-1", nil, now, now))

	rec := a.do(t, http.MethodGet, "/v1/reference/ward?parent_id=lb-1&limit=20&offset=40", "", subUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d %s", rec.Code, rec.Body.String())
	}
	if items := decode(t, rec)["items"].([]any); len(items) != 2 {
		t.Fatalf("items = %v", items)
	}

	a.mock.ExpectQuery(regexp.QuoteMeta("FROM reference_entities WHERE kind=? AND id=?")).
		WithArgs("ward", "w-9").
		WillReturnRows(sqlmock.NewRows(cols))
	if rec := a.do(t, http.MethodGet, "/v1/reference/ward/w-9", "", subUser); rec.Code != http.StatusNotFound {
		t.Fatalf("missing record = %d", rec.Code)
	}
	if err := a.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReferenceReadEdgeCases(t *testing.T) {
	a := newRefApp(t, repository.LockConfig{Enabled: true})
	cases := []struct {
		name string
		path string
		p    *model.Principal
		want int
	}{
		{"anonymous", "/v1/reference/ward", nil, http.StatusUnauthorized},
		{"unknown kind", "/v1/reference/planet", subUser, http.StatusNotFound},
		{"bad limit", "/v1/reference/ward?limit=-3", subUser, http.StatusBadRequest},
		{"tenantless admin", "/v1/reference/ward", &model.Principal{ID: "u-x", Role: model.RoleAdmin}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := a.do(t, http.MethodGet, tc.path, "", tc.p); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	e := echo.New()

	mock.ExpectPing()
	rec := httptest.NewRecorder()
	if err := Health(db)(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("healthy: %d %v", rec.Code, err)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	rec = httptest.NewRecorder()
	if err := Health(db)(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)); err != nil || rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: %d %v", rec.Code, err)
	}
}

func TestErrorBody(t *testing.T) {
	cases := []struct {
		err  error
		want int
		key  string
	}{
		{apperr.Unauthenticated("token expired"), http.StatusUnauthorized, "unauthorized"},
		{apperr.Replay("reuse"), http.StatusUnauthorized, "unauthorized"},
		{apperr.Forbidden("tenant context missing"), http.StatusForbidden, "forbidden"},
		{apperr.ErrReferenceLocked, http.StatusLocked, "locked"},
		{repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{apperr.ErrConfiguration, http.StatusInternalServerError, "internal"},
		{badRequest("invalid body"), http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		status, body := errorBody(tc.err)
		if status != tc.want || body["error"] != tc.key {
			t.Errorf("%v: got %d %v", tc.err, status, body)
		}
	}
	if _, body := errorBody(apperr.Unauthenticated("token expired")); len(body) != 1 {
		t.Errorf("authentication failures must not leak a reason: %v", body)
	}
	if _, body := errorBody(apperr.Forbidden("tenant context missing")); body["reason"] != "tenant context missing" {
		t.Errorf("forbidden reason = %v", body["reason"])
	}
}
