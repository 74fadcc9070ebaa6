// Package access decides whether a caller may perform an action on a
// document. Every document operation goes through Engine.Authorize before it
// touches storage.
package access

import (
	"context"
	"errors"
	"fmt"

	"docportal/internal/apperr"
	"docportal/internal/model"
	"docportal/internal/repository"
)

// Action is an operation subject to authorization.
type Action string

const (
	ActionRead   Action = "read"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
	ActionCreate Action = "create"
	ActionList   Action = "list"
)

// Caller is the authenticated identity a request acts as.
type Caller struct {
	UserID int64
	Role   model.Role
}

// IsAdmin reports whether c has the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// Reason explains a denial.
type Reason string

const (
	ReasonNone Reason = ""
	// ReasonForbidden: the caller knows the document exists but may not act on it.
	ReasonForbidden Reason = "forbidden"
	// ReasonNotFoundOrForbidden: the caller must not learn whether the document exists.
	ReasonNotFoundOrForbidden Reason = "not_found_or_forbidden"
)

// Scope restricts which documents a list action may return.
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeAll covers every document.
	ScopeAll
	// ScopeGranted covers documents the caller holds a readable grant on.
	ScopeGranted
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
	Scope   Scope
	// Capabilities the caller holds on the document, when one was evaluated.
	Capabilities model.Capabilities
}

// Err converts a denial into the error returned to callers, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonNotFoundOrForbidden {
		return apperr.DocumentHidden()
	}
	return apperr.Forbidden("FORBIDDEN", "you do not have permission to perform this action")
}

// FullAccess is what an admin holds on every document.
var FullAccess = model.Capabilities{CanRead: true, CanEdit: true, CanDelete: true}

// GrantFinder looks up the grant of one user on one document. It returns
// repository.ErrNotFound when there is none.
type GrantFinder interface {
	FindGrant(ctx context.Context, userID, documentID int64) (*model.AccessGrant, error)
}

// Engine evaluates authorization rules. It keeps no state of its own; the
// only I/O it performs is the grant lookup.
type Engine struct {
	grants GrantFinder
}

// NewEngine creates an Engine reading grants from g.
func NewEngine(g GrantFinder) *Engine {
	return &Engine{grants: g}
}

func allow(scope Scope, caps model.Capabilities) Decision {
	return Decision{Allowed: true, Scope: scope, Capabilities: caps}
}

func deny(r Reason) Decision {
	return Decision{Allowed: false, Reason: r}
}

// Authorize decides whether c may perform action on the document. documentID
// is ignored for create and list. A lookup failure is returned as an error
// together with a denying Decision.
func (e *Engine) Authorize(ctx context.Context, c Caller, documentID int64, action Action) (Decision, error) {
	if c.UserID <= 0 || !c.Role.Valid() {
		return deny(ReasonForbidden), nil
	}

	switch action {
	case ActionCreate, ActionGrant, ActionRevoke:
		if c.IsAdmin() {
			return allow(ScopeNone, FullAccess), nil
		}
		return deny(ReasonForbidden), nil

	case ActionList:
		if c.IsAdmin() {
			return allow(ScopeAll, FullAccess), nil
		}
		return allow(ScopeGranted, model.Capabilities{}), nil

	case ActionRead, ActionEdit, ActionDelete:
		if c.IsAdmin() {
			return allow(ScopeNone, FullAccess), nil
		}
		return e.authorizeByGrant(ctx, c, documentID, action)

	default:
		return deny(ReasonForbidden), nil
	}
}

func (e *Engine) authorizeByGrant(ctx context.Context, c Caller, documentID int64, action Action) (Decision, error) {
	if documentID <= 0 {
		return deny(ReasonNotFoundOrForbidden), nil
	}
	g, err := e.grants.FindGrant(ctx, c.UserID, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return deny(ReasonNotFoundOrForbidden), nil
		}
		return deny(ReasonForbidden), fmt.Errorf("find grant: %w", err)
	}
	// A grant that does not allow reading keeps the document invisible.
	if !g.CanRead {
		return deny(ReasonNotFoundOrForbidden), nil
	}

	var permitted bool
	switch action {
	case ActionRead:
		permitted = g.CanRead
	case ActionEdit:
		permitted = g.CanEdit
	case ActionDelete:
		permitted = g.CanDelete
	}
	if !permitted {
		d := deny(ReasonForbidden)
		d.Capabilities = g.Capabilities
		return d, nil
	}
	return allow(ScopeNone, g.Capabilities), nil
}
