package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// Identity is the authenticated caller as asserted by the access token.
type Identity struct {
	UserID       uuid.UUID
	Role         enums.ActorRole
	EnterpriseID *uuid.UUID
	Email        string
	Name         string
}

// WithIdentity injects the caller into ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(ctxIdentity).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok && id.UserID != uuid.Nil {
		return id.UserID.String()
	}
	return ""
}

func EnterpriseIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok && id.EnterpriseID != nil {
		return id.EnterpriseID.String()
	}
	return ""
}
