package domain

import (
	"context"
	"time"
)

// Identity is the verified content of a bearer token.
type Identity struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	App       string
	Claims    map[string]any
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

// TokenRequest carries the optional credentials posted to the token endpoint.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

type TokenIssuer interface {
	Issue(ctx context.Context, req TokenRequest) (IssuedToken, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
