package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AuthModeSharedSecret = "shared_secret"
	AuthModeJWKS         = "jwks"

	GateBeforeAll   = "before_all"
	GateAfterPublic = "after_public"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	LogLevel    string
	LogFormat   string

	AuthMode         string
	GatePlacement    string
	IssuancePublic   bool
	IssuancePolicy   string
	CORSAllowOrigins []string

	TokenKey           string
	TokenIssuer        string
	TokenUsers         string
	TokenClockSkewSecs int

	IDPDomain          string
	IDPClientID        string
	IDPClientSecret    string
	IDPAudience        string
	IDPIssuer          string
	IDPHTTPTimeoutSecs int

	JWKSURL                string
	JWKSCacheTTLSeconds    int
	JWKSRateLimitPerMinute int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	return FromViper(NewEnvViper())
}

// NewEnvViper returns a viper instance reading the process environment with
// the service defaults applied. Flags may be bound on top of it.
func NewEnvViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("AUTH_MODE", AuthModeSharedSecret)
	v.SetDefault("GATE_PLACEMENT", GateAfterPublic)
	v.SetDefault("TOKEN_ISSUER", "ticket-app")
	v.SetDefault("IDP_HTTP_TIMEOUT_SECONDS", 5)
	v.SetDefault("JWKS_CACHE_TTL_SECONDS", 600)
	v.SetDefault("JWKS_RATE_LIMIT_PER_MINUTE", 5)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_MAX_KEYS", 10000)
	return v
}

// FromViper builds a Config from an already populated viper instance. Keys
// are the environment variable names.
func FromViper(v *viper.Viper) Config {
	addr := v.GetString("HTTP_ADDR")
	if addr == "" {
		if port := v.GetString("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":3001"
		}
	}
	return Config{
		HTTPAddr:               addr,
		DatabaseURL:            v.GetString("DATABASE_URL"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogFormat:              v.GetString("LOG_FORMAT"),
		AuthMode:               strings.ToLower(strings.TrimSpace(v.GetString("AUTH_MODE"))),
		GatePlacement:          strings.ToLower(strings.TrimSpace(v.GetString("GATE_PLACEMENT"))),
		IssuancePublic:         v.GetBool("ISSUANCE_PUBLIC"),
		IssuancePolicy:         v.GetString("ISSUANCE_POLICY_PATH"),
		CORSAllowOrigins:       splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		TokenKey:               v.GetString("TOKEN_KEY"),
		TokenIssuer:            v.GetString("TOKEN_ISSUER"),
		TokenUsers:             v.GetString("TOKEN_USERS"),
		TokenClockSkewSecs:     nonNegative(v.GetInt("TOKEN_CLOCK_SKEW_SECONDS")),
		IDPDomain:              strings.TrimSpace(v.GetString("IDP_DOMAIN")),
		IDPClientID:            v.GetString("IDP_CLIENT_ID"),
		IDPClientSecret:        v.GetString("IDP_CLIENT_SECRET"),
		IDPAudience:            v.GetString("IDP_AUDIENCE"),
		IDPIssuer:              v.GetString("IDP_ISSUER"),
		IDPHTTPTimeoutSecs:     positiveOr(v.GetInt("IDP_HTTP_TIMEOUT_SECONDS"), 5),
		JWKSURL:                v.GetString("JWKS_URL"),
		JWKSCacheTTLSeconds:    positiveOr(v.GetInt("JWKS_CACHE_TTL_SECONDS"), 600),
		JWKSRateLimitPerMinute: positiveOr(v.GetInt("JWKS_RATE_LIMIT_PER_MINUTE"), 5),
		RateLimitRequests:      nonNegative(v.GetInt("RATE_LIMIT_REQUESTS")),
		RateLimitWindowSeconds: positiveOr(v.GetInt("RATE_LIMIT_WINDOW_SECONDS"), 60),
		RateLimitMaxKeys:       positiveOr(v.GetInt("RATE_LIMIT_MAX_KEYS"), 10000),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                nonNegative(v.GetInt("REDIS_DB")),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Issuer returns the expected "iss" claim for delegated tokens.
func (c Config) Issuer() string {
	if c.IDPIssuer != "" {
		return c.IDPIssuer
	}
	if c.IDPDomain == "" {
		return ""
	}
	return c.IDPBaseURL() + "/"
}

// IDPBaseURL returns the identity provider origin without a trailing slash.
func (c Config) IDPBaseURL() string {
	domain := strings.TrimRight(c.IDPDomain, "/")
	if domain == "" {
		return ""
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

func (c Config) JWKSEndpoint() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	if c.IDPDomain == "" {
		return ""
	}
	return c.IDPBaseURL() + "/.well-known/jwks.json"
}

func (c Config) TokenEndpoint() string {
	if c.IDPDomain == "" {
		return ""
	}
	return c.IDPBaseURL() + "/oauth/token"
}

func (c Config) IDPTimeout() time.Duration {
	return time.Duration(c.IDPHTTPTimeoutSecs) * time.Second
}

func (c Config) JWKSCacheTTL() time.Duration {
	return time.Duration(c.JWKSCacheTTLSeconds) * time.Second
}

func (c Config) ClockSkew() time.Duration {
	return time.Duration(c.TokenClockSkewSecs) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
