package token

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketgate/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (crypto.PublicKey, error)
}

type mode int

const (
	modeSharedSecret mode = iota
	modeJWKS
)

// Verifier checks bearer tokens in exactly one trust model, fixed at
// construction: an HMAC shared secret or provider keys from a KeyResolver.
type Verifier struct {
	mode     mode
	secret   []byte
	keys     KeyResolver
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

type VerifierOption func(*Verifier)

func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) {
		if leeway > 0 {
			v.leeway = leeway
		}
	}
}

func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewSharedSecretVerifier accepts HS256 tokens signed with secret. When
// issuer is non-empty the "iss" claim must match it.
func NewSharedSecretVerifier(secret []byte, issuer string, opts ...VerifierOption) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("TOKEN_KEY is required for shared secret mode")
	}
	v := &Verifier{
		mode:   modeSharedSecret,
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func NewJWKSVerifier(keys KeyResolver, issuer, audience string, opts ...VerifierOption) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("key resolver is required for jwks mode")
	}
	if issuer == "" {
		return nil, errors.New("IDP_DOMAIN or IDP_ISSUER is required for jwks mode")
	}
	if audience == "" {
		return nil, errors.New("IDP_AUDIENCE is required for jwks mode")
	}
	v := &Verifier{
		mode:     modeJWKS,
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Verifier) Verify(ctx context.Context, rawToken string) (domain.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.Identity{}, &domain.VerificationError{Reason: domain.ReasonMalformed, Err: errors.New("empty token")}
	}

	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var (
		keyFunc jwt.Keyfunc
		keyErr  error
	)
	switch v.mode {
	case modeSharedSecret:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		keyFunc = func(*jwt.Token) (any, error) {
			return v.secret, nil
		}
	case modeJWKS:
		opts = append(opts, jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodES256.Alg(),
		}))
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				keyErr = errors.New("token header has no kid")
				return nil, keyErr
			}
			key, err := v.keys.Resolve(ctx, kid)
			if err != nil {
				keyErr = err
				return nil, err
			}
			return key, nil
		}
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, keyFunc, opts...)
	if err != nil {
		return domain.Identity{}, classify(err, keyErr)
	}
	if !parsed.Valid {
		return domain.Identity{}, &domain.VerificationError{Reason: domain.ReasonSignature}
	}
	return identityFromClaims(claims), nil
}

func classify(err, keyErr error) error {
	reason := domain.ReasonMalformed
	switch {
	case keyErr != nil:
		reason = domain.ReasonKeyFetch
		err = keyErr
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = domain.ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = domain.ReasonSignature
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		reason = domain.ReasonClaims
	}
	return &domain.VerificationError{Reason: reason, Err: err}
}

func identityFromClaims(claims jwt.MapClaims) domain.Identity {
	identity := domain.Identity{Claims: make(map[string]any, len(claims))}
	for k, v := range claims {
		identity.Claims[k] = v
	}
	identity.Subject, _ = claims.GetSubject()
	identity.Issuer, _ = claims.GetIssuer()
	if aud, err := claims.GetAudience(); err == nil {
		identity.Audience = []string(aud)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	if app, ok := claims["app"].(string); ok {
		identity.App = app
	}
	return identity
}

// String is used in logs; it never includes key material.
func (v *Verifier) String() string {
	if v.mode == modeJWKS {
		return fmt.Sprintf("jwks(iss=%s aud=%s)", v.issuer, v.audience)
	}
	return "shared_secret"
}
