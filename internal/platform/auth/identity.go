package auth

import (
	"context"
	"strings"
)

// Identity captures the customer principal established by the API gateway.
// Authentication itself happens upstream; the engine trusts the gateway
// header and only carries the resolved user id.
type Identity struct {
	UID string
}

// Operator identifies an authenticated back-office caller.
type Operator struct {
	Subject string
}

type contextKey string

const (
	identityContextKey contextKey = "github.com/maplecart/api/internal/platform/auth/identity"
	operatorContextKey contextKey = "github.com/maplecart/api/internal/platform/auth/operator"
)

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}

// WithOperator stores the operator principal within the context.
func WithOperator(ctx context.Context, operator *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, operator)
}

// OperatorFromContext retrieves the operator principal from context.
func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	operator, ok := ctx.Value(operatorContextKey).(*Operator)
	if !ok || operator == nil {
		return nil, false
	}
	return operator, true
}
