package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "PORT", "AUTH_MODE", "GATE_PLACEMENT", "JWKS_CACHE_TTL_SECONDS", "TOKEN_ISSUER"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()

	if cfg.HTTPAddr != ":3001" {
		t.Fatalf("expected :3001, got %q", cfg.HTTPAddr)
	}
	if cfg.AuthMode != AuthModeSharedSecret || cfg.GatePlacement != GateAfterPublic {
		t.Fatalf("unexpected modes: %q %q", cfg.AuthMode, cfg.GatePlacement)
	}
	if cfg.JWKSCacheTTL() != 10*time.Minute {
		t.Fatalf("expected 10m cache ttl, got %v", cfg.JWKSCacheTTL())
	}
	if cfg.JWKSRateLimitPerMinute != 5 || cfg.IDPTimeout() != 5*time.Second {
		t.Fatalf("unexpected jwks defaults: %+v", cfg)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "8080")
	t.Setenv("AUTH_MODE", " JWKS ")
	t.Setenv("GATE_PLACEMENT", "before_all")
	t.Setenv("ISSUANCE_PUBLIC", "true")
	t.Setenv("IDP_DOMAIN", "tenant.idp.test")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3001, https://tickets.test ,")
	t.Setenv("JWKS_CACHE_TTL_SECONDS", "-4")
	t.Setenv("TOKEN_CLOCK_SKEW_SECONDS", "30")

	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected PORT fallback, got %q", cfg.HTTPAddr)
	}
	if cfg.AuthMode != AuthModeJWKS || cfg.GatePlacement != GateBeforeAll || !cfg.IssuancePublic {
		t.Fatalf("unexpected modes: %+v", cfg)
	}
	if want := []string{"http://localhost:3001", "https://tickets.test"}; !reflect.DeepEqual(cfg.CORSAllowOrigins, want) {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowOrigins)
	}
	if cfg.JWKSCacheTTLSeconds != 600 {
		t.Fatalf("expected negative ttl to fall back, got %d", cfg.JWKSCacheTTLSeconds)
	}
	if cfg.ClockSkew() != 30*time.Second {
		t.Fatalf("unexpected skew %v", cfg.ClockSkew())
	}
}

func TestIdentityProviderURLs(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		issuer string
		jwks   string
		token  string
	}{
		{
			name:   "bare domain",
			cfg:    Config{IDPDomain: "tenant.idp.test"},
			issuer: "https://tenant.idp.test/",
			jwks:   "https://tenant.idp.test/.well-known/jwks.json",
			token:  "https://tenant.idp.test/oauth/token",
		},
		{
			name:   "explicit overrides",
			cfg:    Config{IDPDomain: "http://localhost:9000/", IDPIssuer: "urn:issuer", JWKSURL: "http://keys.test/jwks"},
			issuer: "urn:issuer",
			jwks:   "http://keys.test/jwks",
			token:  "http://localhost:9000/oauth/token",
		},
		{
			name: "unset",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.Issuer(); got != tc.issuer {
				t.Fatalf("issuer: expected %q, got %q", tc.issuer, got)
			}
			if got := tc.cfg.JWKSEndpoint(); got != tc.jwks {
				t.Fatalf("jwks: expected %q, got %q", tc.jwks, got)
			}
			if got := tc.cfg.TokenEndpoint(); got != tc.token {
				t.Fatalf("token: expected %q, got %q", tc.token, got)
			}
		})
	}
}
