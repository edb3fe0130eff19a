// Package guard holds the per-route checks that run after access-token
// verification. Each stage is a pure function over the request context;
// routes compose them when they are registered.
package guard

import (
	"slices"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
)

// RouteMeta is what a route declares about itself.
type RouteMeta struct {
	Public bool         // skip the tenant check
	Roles  []model.Role // allowed roles; empty means any
}

// Roles builds a RouteMeta restricted to roles.
func Roles(roles ...model.Role) RouteMeta { return RouteMeta{Roles: roles} }

// RequestContext is threaded explicitly from the guards into handlers.
// CandidateID is set by TenantContext and is the only tenant value
// handlers may filter by.
type RequestContext struct {
	Principal   *model.Principal
	CandidateID string
	Global      bool // principal is not bound to a tenant (SUPER_ADMIN)
}

// Authenticated reports whether a verified principal is attached.
func (rc RequestContext) Authenticated() bool { return rc.Principal != nil }

// Stage is one guard. It returns the possibly enriched context or an
// error that stops the chain.
type Stage func(meta RouteMeta, rc RequestContext) (RequestContext, error)

// Default is the chain every non-public route runs.
var Default = []Stage{TenantContext, RoleGate}

// Run applies stages in order.
func Run(meta RouteMeta, rc RequestContext, stages ...Stage) (RequestContext, error) {
	var err error
	for _, s := range stages {
		if rc, err = s(meta, rc); err != nil {
			return rc, err
		}
	}
	return rc, nil
}

// TenantContext resolves the tenant scope. Public routes and requests with
// no principal pass untouched; the latter are left to the role gate or
// the handler. A principal without a candidate fails closed unless its
// role is global.
func TenantContext(meta RouteMeta, rc RequestContext) (RequestContext, error) {
	if meta.Public || rc.Principal == nil {
		return rc, nil
	}
	p := rc.Principal
	if p.Role.IsGlobal() {
		rc.Global = true
		rc.CandidateID = p.CandidateID
		return rc, nil
	}
	if p.CandidateID == "" {
		return rc, apperr.Forbidden("tenant context missing")
	}
	rc.CandidateID = p.CandidateID
	return rc, nil
}

// RoleGate enforces meta.Roles.
func RoleGate(meta RouteMeta, rc RequestContext) (RequestContext, error) {
	if len(meta.Roles) == 0 {
		return rc, nil
	}
	if rc.Principal == nil {
		return rc, apperr.Unauthenticated("authentication required")
	}
	if !slices.Contains(meta.Roles, rc.Principal.Role) {
		return rc, apperr.Forbidden("role not permitted")
	}
	return rc, nil
}

// TargetTenant picks the tenant a request acts on. Tenant-bound principals
// always act on their own candidate and may not name another one. Global
// principals must name the target explicitly.
func TargetTenant(rc RequestContext, requested string) (string, error) {
	if rc.Principal == nil {
		return "", apperr.Unauthenticated("authentication required")
	}
	if rc.Global {
		if requested == "" {
			return "", apperr.Forbidden("target candidate required")
		}
		return requested, nil
	}
	if rc.CandidateID == "" {
		return "", apperr.Forbidden("tenant context missing")
	}
	if requested != "" && requested != rc.CandidateID {
		return "", apperr.Forbidden("cross-tenant access")
	}
	return rc.CandidateID, nil
}
