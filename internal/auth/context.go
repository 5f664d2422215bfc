package auth

import (
	"context"

	"github.com/jvillanueva/hilot/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID    int64
	Username  string
	Role      string
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// UserIDPtr returns the authenticated user id, or nil when unauthenticated.
// Record stores take *int64 for actor columns.
func UserIDPtr(ctx context.Context) *int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return &ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleAdmin
}

// CanEditRecords reports whether the user may create or modify clinical
// records. BHWs have read-only access.
func CanEditRecords(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleAdmin || ac.Role == model.RoleMidwife
}
