package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

type contextKey int

const (
	ctxUserID contextKey = iota
	ctxRole
	ctxSessionID
	ctxRequestID
)

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func UserIDFromContext(ctx context.Context) string { return stringFrom(ctx, ctxUserID) }

func RoleFromContext(ctx context.Context) string { return stringFrom(ctx, ctxRole) }

// SessionIDFromContext returns the access token jti.
func SessionIDFromContext(ctx context.Context) string { return stringFrom(ctx, ctxSessionID) }

func RequestIDFromContext(ctx context.Context) string { return stringFrom(ctx, ctxRequestID) }

// CallerID parses the authenticated user id. A missing or malformed id is
// reported as unauthenticated.
func CallerID(ctx context.Context) (uuid.UUID, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// WithUserID is used by tests and internal callers that bypass Auth.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

func withClaims(ctx context.Context, userID, role, sessionID string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return context.WithValue(ctx, ctxSessionID, sessionID)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}
