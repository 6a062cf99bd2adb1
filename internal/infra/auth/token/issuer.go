package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketgate/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultApp        = "ticket-app"
	DefaultServiceTTL = 2 * time.Hour
	DefaultUserTTL    = 2 * time.Minute
)

type CredentialChecker interface {
	Check(username, password string) error
}

// SelfIssuer signs tokens with the same shared secret the Verifier checks.
// An empty request yields the application token; a username/password pair
// yields a short-lived user token once the credentials check out.
type SelfIssuer struct {
	secret      []byte
	issuer      string
	app         string
	serviceTTL  time.Duration
	userTTL     time.Duration
	credentials CredentialChecker
	now         func() time.Time
}

type SelfIssuerOption func(*SelfIssuer)

func WithCredentials(checker CredentialChecker) SelfIssuerOption {
	return func(s *SelfIssuer) {
		s.credentials = checker
	}
}

func WithTTLs(service, user time.Duration) SelfIssuerOption {
	return func(s *SelfIssuer) {
		if service > 0 {
			s.serviceTTL = service
		}
		if user > 0 {
			s.userTTL = user
		}
	}
}

func WithIssuerClock(now func() time.Time) SelfIssuerOption {
	return func(s *SelfIssuer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSelfIssuer(secret []byte, issuer string, opts ...SelfIssuerOption) (*SelfIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("TOKEN_KEY is required for self issuance")
	}
	s := &SelfIssuer{
		secret:     append([]byte(nil), secret...),
		issuer:     issuer,
		app:        DefaultApp,
		serviceTTL: DefaultServiceTTL,
		userTTL:    DefaultUserTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SelfIssuer) Issue(_ context.Context, req domain.TokenRequest) (domain.IssuedToken, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" && req.Password == "" {
		return s.sign("", s.serviceTTL)
	}
	if username == "" || req.Password == "" {
		return domain.IssuedToken{}, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if s.credentials == nil {
		return domain.IssuedToken{}, domain.ErrInvalidCredentials
	}
	if err := s.credentials.Check(username, req.Password); err != nil {
		return domain.IssuedToken{}, err
	}
	return s.sign(username, s.userTTL)
}

func (s *SelfIssuer) sign(subject string, ttl time.Duration) (domain.IssuedToken, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		"app": s.app,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	if subject != "" {
		claims["sub"] = subject
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.IssuedToken{Token: signed, ExpiresAt: time.Unix(expiresAt.Unix(), 0)}, nil
}
