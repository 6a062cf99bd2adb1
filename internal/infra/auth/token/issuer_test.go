package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketgate/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

func TestSelfIssuer_ServiceTokenLifetime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewSelfIssuer(testSecret, "ticket-app", WithIssuerClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	issued, err := issuer.Issue(context.Background(), domain.TokenRequest{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !issued.ExpiresAt.Equal(now.Add(DefaultServiceTTL)) {
		t.Fatalf("unexpected expiry: %s", issued.ExpiresAt)
	}
}

func TestSelfIssuer_UserToken(t *testing.T) {
	creds := mustCredentials(t, "ana", "s3cret")
	now := time.Now()
	issuer, _ := NewSelfIssuer(testSecret, "ticket-app",
		WithCredentials(creds),
		WithIssuerClock(func() time.Time { return now }),
	)
	verifier, _ := NewSharedSecretVerifier(testSecret, "ticket-app")

	issued, err := issuer.Issue(context.Background(), domain.TokenRequest{Username: "ana", Password: "s3cret"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got := issued.ExpiresAt.Sub(now.Truncate(time.Second)); got != DefaultUserTTL {
		t.Fatalf("unexpected user token lifetime: %s", got)
	}
	identity, err := verifier.Verify(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Subject != "ana" {
		t.Fatalf("unexpected subject: %q", identity.Subject)
	}
}

func TestSelfIssuer_UserTokenRejections(t *testing.T) {
	creds := mustCredentials(t, "ana", "s3cret")
	withCreds, _ := NewSelfIssuer(testSecret, "", WithCredentials(creds))
	withoutCreds, _ := NewSelfIssuer(testSecret, "")

	cases := []struct {
		name   string
		issuer *SelfIssuer
		req    domain.TokenRequest
		want   error
	}{
		{name: "missing password", issuer: withCreds, req: domain.TokenRequest{Username: "ana"}, want: domain.ErrValidation},
		{name: "missing username", issuer: withCreds, req: domain.TokenRequest{Password: "x"}, want: domain.ErrValidation},
		{name: "wrong password", issuer: withCreds, req: domain.TokenRequest{Username: "ana", Password: "nope"}, want: domain.ErrInvalidCredentials},
		{name: "unknown user", issuer: withCreds, req: domain.TokenRequest{Username: "bob", Password: "s3cret"}, want: domain.ErrInvalidCredentials},
		{name: "no credential store", issuer: withoutCreds, req: domain.TokenRequest{Username: "ana", Password: "s3cret"}, want: domain.ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.issuer.Issue(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	creds, err := ParseCredentials(" ana:" + string(hash) + " , ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if creds.Len() != 1 {
		t.Fatalf("expected one credential, got %d", creds.Len())
	}
	if _, err := ParseCredentials("ana"); err == nil {
		t.Fatal("expected error for entry without hash")
	}
	if _, err := ParseCredentials("ana:plaintext"); err == nil {
		t.Fatal("expected error for non-bcrypt hash")
	}
}

func mustCredentials(t *testing.T, user, password string) *StaticCredentials {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	creds, err := ParseCredentials(user + ":" + string(hash))
	if err != nil {
		t.Fatalf("parse credentials: %v", err)
	}
	return creds
}
