// Package auth reads the caller identity forwarded by the API gateway. Token
// validation happens upstream; this service trusts the forwarded headers.
package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

const (
	HeaderUserID      = "X-User-ID"
	HeaderPermissions = "X-User-Permissions"
)

const (
	PermLoansCreate  = "loans:create"
	PermLoansRead    = "loans:read"
	PermLoansCancel  = "loans:cancel"
	PermLoansManage  = "loans:manage"
	PermDevicesWrite = "devices:write"
)

type Identity struct {
	UserID      string
	Permissions []string
}

func (id Identity) Has(permission string) bool {
	return slices.Contains(id.Permissions, permission)
}

// IsStaff reports whether the caller may act on loans they do not own.
func (id Identity) IsStaff() bool {
	return id.Has(PermLoansManage)
}

// System is the identity for actions driven by another service's events.
func System(source string) Identity {
	return Identity{
		UserID:      "system:" + source,
		Permissions: []string{PermLoansManage},
	}
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

func FromRequest(r *http.Request) Identity {
	id := Identity{UserID: strings.TrimSpace(r.Header.Get(HeaderUserID))}
	for _, p := range strings.Split(r.Header.Get(HeaderPermissions), ",") {
		if p = strings.TrimSpace(p); p != "" {
			id.Permissions = append(id.Permissions, p)
		}
	}
	return id
}

// Middleware attaches the forwarded identity to the request context. Requests
// without one pass through; Require rejects them where it matters.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromRequest(r)
		if id.UserID != "" {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Require wraps a route handler, rejecting callers without an
// identity (401) or without the permission (403).
func Require(log *logger.Logger, permission string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, ok := FromContext(r.Context())
		if !ok {
			writeDenied(w, log, r, apperrors.Unauthorized("Missing caller identity"))
			return
		}
		if permission != "" && !id.Has(permission) {
			writeDenied(w, log, r, apperrors.Forbidden("Missing permission "+permission))
			return
		}
		next(w, r, ps)
	}
}

func writeDenied(w http.ResponseWriter, log *logger.Logger, r *http.Request, appErr *apperrors.AppError) {
	log.Warn("Request denied",
		"code", appErr.Code,
		"path", r.URL.Path,
		"user_id", r.Header.Get(HeaderUserID),
	)
	if err := apperrors.WriteError(w, appErr); err != nil {
		log.Error("failed to write error response", "operation", "Require", "error", err)
	}
}
