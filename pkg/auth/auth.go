// Package auth supplies the JWT bearer verification mechanics the
// deliberation and policy-management APIs require: a token is valid if it
// is signed by a key named in a remote JSON Web Key Set by kid, and the
// identity attributed to the request is read from a configurable claim.
// The actual cryptographic work is delegated to golang-jwt/jwx, never
// hand-rolled.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Context is the identity a verified request carries through the rest of
// the pipeline.
type Context struct {
	Initiator string
	System    string
}

type contextKey string

const contextKeyAuth contextKey = "auth"

// WithContext stores ac in ctx.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, contextKeyAuth, ac)
}

// FromContext retrieves a Context previously stored by WithContext.
func FromContext(ctx context.Context) (Context, bool) {
	ac, ok := ctx.Value(contextKeyAuth).(Context)
	return ac, ok
}

var (
	// ErrMissingToken is returned when no (or a malformed) Authorization
	// header is present.
	ErrMissingToken = errors.New("auth: missing or malformed bearer token")
	// ErrInvalidToken is returned when the token fails signature
	// verification or claim extraction.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Verifier verifies bearer tokens against a JWKS resolved by kid and
// extracts AuthContext from the configured initiator claim.
type Verifier struct {
	set            jwk.Set
	initiatorClaim string
}

// NewVerifier fetches the JWK set at jwksURL once at startup. A production
// deployment with frequently rotating keys should instead construct set via
// jwk.NewCache and pass its Get result in; the single fetch here mirrors
// the teacher's own "connect once at startup" style for the database pool.
func NewVerifier(ctx context.Context, jwksURL, initiatorClaim string) (*Verifier, error) {
	set, err := jwk.Fetch(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch JWKS from %s: %w", jwksURL, err)
	}
	if initiatorClaim == "" {
		initiatorClaim = "sub"
	}
	return &Verifier{set: set, initiatorClaim: initiatorClaim}, nil
}

// Verify parses and validates the bearer token carried by authHeader (the
// raw "Authorization" header value) and extracts a Context from it.
func (v *Verifier) Verify(authHeader string) (Context, error) {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return Context{}, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyfunc)
	if err != nil || !parsed.Valid {
		return Context{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	initiator, err := claimString(claims, v.initiatorClaim)
	if err != nil {
		return Context{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	system, _ := claimString(claims, "system")
	return Context{Initiator: initiator, System: system}, nil
}

// keyfunc resolves the signing key named by the token's kid header from
// the cached JWK set, satisfying jwt.Keyfunc.
func (v *Verifier) keyfunc(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("token header has no kid")
	}
	key, ok := v.set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("no key in JWKS for kid %q", kid)
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("decode JWK %q: %w", kid, err)
	}
	return raw, nil
}

// claimString reads claim as either a string or a number (stringified),
// the two shapes spec.md allows for the initiator claim.
func claimString(claims jwt.MapClaims, claim string) (string, error) {
	v, ok := claims[claim]
	if !ok {
		return "", fmt.Errorf("claim %q is not present", claim)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("claim %q has unsupported type %T", claim, v)
	}
}

// Middleware extracts and verifies the bearer token on every request,
// rejecting with 401 on failure and otherwise storing Context in the
// request context for downstream handlers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := v.Verify(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"missing or invalid bearer token"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
	})
}
