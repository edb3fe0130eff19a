package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/guard"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// ReferenceHandler exposes shared reference geography. Reads are open to
// any authenticated principal. Writes are routed to SUPER_ADMIN and still
// pass through the lock, so they answer 423 unless an operator bypass is
// configured.
type ReferenceHandler struct {
	Refs *repository.ReferenceRepo
}

func NewReferenceHandler(refs *repository.ReferenceRepo) *ReferenceHandler {
	if refs == nil {
		panic("nil repository passed to NewReferenceHandler")
	}
	return &ReferenceHandler{Refs: refs}
}

type referenceReq struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	ParentID   string            `json:"parentId"`
	Attributes map[string]string `json:"attributes"`
}

func (r referenceReq) record() *model.ReferenceRecord {
	return &model.ReferenceRecord{Code: r.Code, Name: r.Name, ParentID: r.ParentID, Attributes: r.Attributes}
}

func kindParam(c echo.Context) model.ReferenceKind { return model.ReferenceKind(c.Param("kind")) }

func requireAuth(rc guard.RequestContext) error {
	if !rc.Authenticated() {
		return apperr.Unauthenticated("authentication required")
	}
	return nil
}

// List returns one page of a kind, optionally filtered by parent_id.
func (h *ReferenceHandler) List(c echo.Context, rc guard.RequestContext) error {
	if err := requireAuth(rc); err != nil {
		return err
	}
	f := repository.ReferenceFilter{ParentID: c.QueryParam("parent_id"), Limit: defaultPageSize}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return badRequest("invalid limit")
		}
		f.Limit = min(n, maxPageSize)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest("invalid offset")
		}
		f.Offset = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, err := h.Refs.List(ctx, kindParam(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": f.Limit, "offset": f.Offset})
}

// Get returns one record by id.
func (h *ReferenceHandler) Get(c echo.Context, rc guard.RequestContext) error {
	if err := requireAuth(rc); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	rec, err := h.Refs.Get(ctx, kindParam(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// Create inserts one record.
func (h *ReferenceHandler) Create(c echo.Context, _ guard.RequestContext) error {
	var req referenceReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid body")
	}
	if req.Code == "" || req.Name == "" {
		return badRequest("code and name required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	rec := req.record()
	if err := h.Refs.Create(ctx, kindParam(c), rec); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

// Update replaces code, name, parent and attributes of one record.
func (h *ReferenceHandler) Update(c echo.Context, _ guard.RequestContext) error {
	var req referenceReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid body")
	}
	if req.Code == "" || req.Name == "" {
		return badRequest("code and name required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	rec := req.record()
	rec.ID = c.Param("id")
	if err := h.Refs.Update(ctx, kindParam(c), rec); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// Delete removes one record.
func (h *ReferenceHandler) Delete(c echo.Context, _ guard.RequestContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Refs.Delete(ctx, kindParam(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
