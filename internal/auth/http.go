// ABOUTME: Bearer token resolution and HTTP middleware for MCP and catalog endpoints
// ABOUTME: Accepts pre-shared static tokens or signed JWTs and adds the identity to context

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoCredentials indicates the request carried no token at all.
var ErrNoCredentials = errors.New("no credentials provided")

// StaticTokens looks up capabilities for a pre-shared token, returning nil if unknown.
type StaticTokens interface {
	GetCapabilities(token string) []string
}

// StaticPrincipal is the principal ID assigned to callers using a static token.
const StaticPrincipal = "static"

// Resolver turns a request's bearer token into an AuthContext.
type Resolver struct {
	verifier TokenVerifier
	static   StaticTokens
}

// NewResolver creates a Resolver. Either source may be nil.
func NewResolver(verifier TokenVerifier, static StaticTokens) *Resolver {
	return &Resolver{verifier: verifier, static: static}
}

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// RequestToken returns the token from the Authorization header or, failing
// that, the "token" query parameter.
func RequestToken(r *http.Request) string {
	if token, errMsg := ExtractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// Resolve maps a token to an identity. Static tokens are checked first.
func (res *Resolver) Resolve(token string) (*AuthContext, error) {
	if token == "" {
		return nil, ErrNoCredentials
	}
	if res.static != nil {
		if caps := res.static.GetCapabilities(token); caps != nil {
			return &AuthContext{PrincipalID: StaticPrincipal, Capabilities: caps}, nil
		}
	}
	if res.verifier == nil {
		return nil, ErrInvalidToken
	}
	claims, err := res.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	return &AuthContext{PrincipalID: claims.Subject, Capabilities: claims.Capabilities}, nil
}

// Authenticate resolves the identity of r.
func (res *Resolver) Authenticate(r *http.Request) (*AuthContext, error) {
	return res.Resolve(RequestToken(r))
}

// HTTPAuthMiddleware creates an HTTP middleware that resolves the caller and
// adds AuthContext to the request context. Invalid tokens are always rejected;
// missing tokens are rejected only when required is set, otherwise the
// request continues with fallback as its identity.
func HTTPAuthMiddleware(res *Resolver, required bool, fallback *AuthContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := res.Authenticate(r)
			switch {
			case err == nil:
			case errors.Is(err, ErrNoCredentials) && !required:
				authCtx = fallback
			case errors.Is(err, ErrNoCredentials):
				http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
				return
			default:
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			if authCtx != nil {
				r = r.WithContext(WithAuth(r.Context(), authCtx))
			}
			next.ServeHTTP(w, r)
		})
	}
}
