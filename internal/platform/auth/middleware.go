package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"regexp"
	"strings"

	"github.com/maplecart/api/internal/platform/httpx"
)

const (
	defaultUserIDHeader      = "X-User-ID"
	defaultOperatorKeyHeader = "X-Operator-Key"
	maxUserIDLength          = 128
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)

// GatewayAuthenticator extracts the customer identity established by the API
// gateway and enforces the operator API key on back-office routes.
type GatewayAuthenticator struct {
	userIDHeader      string
	operatorKeyHeader string
	operatorKeyHash   [sha256.Size]byte
	operatorKeySet    bool
}

// GatewayOption customises GatewayAuthenticator behaviour.
type GatewayOption func(*GatewayAuthenticator)

// WithUserIDHeader overrides the header carrying the gateway-resolved user id.
func WithUserIDHeader(name string) GatewayOption {
	return func(a *GatewayAuthenticator) {
		name = strings.TrimSpace(name)
		if name != "" {
			a.userIDHeader = name
		}
	}
}

// WithOperatorKey configures the operator API key and its header.
func WithOperatorKey(header, key string) GatewayOption {
	return func(a *GatewayAuthenticator) {
		header = strings.TrimSpace(header)
		if header != "" {
			a.operatorKeyHeader = header
		}
		key = strings.TrimSpace(key)
		if key != "" {
			a.operatorKeyHash = sha256.Sum256([]byte(key))
			a.operatorKeySet = true
		}
	}
}

// NewGatewayAuthenticator constructs the authenticator for middleware composition.
func NewGatewayAuthenticator(opts ...GatewayOption) *GatewayAuthenticator {
	a := &GatewayAuthenticator{
		userIDHeader:      defaultUserIDHeader,
		operatorKeyHeader: defaultOperatorKeyHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireUser ensures the gateway supplied a well-formed user id and stores
// the resulting identity on the request context.
func (a *GatewayAuthenticator) RequireUser(next http.Handler) http.Handler {
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(a.userIDHeader))
		if uid == "" {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "missing user identity", http.StatusUnauthorized))
			return
		}
		if len(uid) > maxUserIDLength || !userIDPattern.MatchString(uid) {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "malformed user identity", http.StatusUnauthorized))
			return
		}

		ctx := WithIdentity(r.Context(), &Identity{UID: uid})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator enforces the configured operator API key. The comparison is
// constant time over a digest so key length never leaks.
func (a *GatewayAuthenticator) RequireOperator(next http.Handler) http.Handler {
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.operatorKeySet {
			httpx.WriteError(r.Context(), w, httpx.NewError("operator_auth_unconfigured", "operator access is not configured", http.StatusForbidden))
			return
		}

		presented := strings.TrimSpace(r.Header.Get(a.operatorKeyHeader))
		if presented == "" {
			httpx.WriteError(r.Context(), w, httpx.NewError("operator_key_required", "missing operator key", http.StatusUnauthorized))
			return
		}

		digest := sha256.Sum256([]byte(presented))
		if subtle.ConstantTimeCompare(digest[:], a.operatorKeyHash[:]) != 1 {
			httpx.WriteError(r.Context(), w, httpx.NewError("operator_key_invalid", "invalid operator key", http.StatusForbidden))
			return
		}

		ctx := WithOperator(r.Context(), &Operator{Subject: "operator"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
