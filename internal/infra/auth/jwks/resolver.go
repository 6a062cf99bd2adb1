package jwks

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"ticketgate/internal/domain"
	"ticketgate/internal/infra/ratelimit"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultFetchTimeout = 5 * time.Second
	defaultFetchLimit   = 5
	defaultFetchWindow  = time.Minute
	maxJWKSBytes        = 1 << 20
)

// Resolver maps a key identifier to the identity provider's public key.
// Keys are cached individually; concurrent misses for one kid share a single
// upstream fetch, and fetches are budgeted by a rate limiter.
type Resolver struct {
	url         string
	httpClient  *http.Client
	ttl         time.Duration
	timeout     time.Duration
	limiter     domain.RateLimiter
	fetchLimit  int
	fetchWindow time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group
}

type cacheEntry struct {
	key       crypto.PublicKey
	fetchedAt time.Time
}

type Option func(*Resolver)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.httpClient = client
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithFetchTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithRateLimiter budgets upstream fetches to limit per window.
func WithRateLimiter(limiter domain.RateLimiter, limit int, window time.Duration) Option {
	return func(r *Resolver) {
		if limiter != nil {
			r.limiter = limiter
		}
		if limit > 0 {
			r.fetchLimit = limit
		}
		if window > 0 {
			r.fetchWindow = window
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewResolver(url string, opts ...Option) (*Resolver, error) {
	if url == "" {
		return nil, errors.New("jwks url is required")
	}
	r := &Resolver{
		url:         url,
		ttl:         defaultCacheTTL,
		timeout:     defaultFetchTimeout,
		fetchLimit:  defaultFetchLimit,
		fetchWindow: defaultFetchWindow,
		now:         time.Now,
		entries:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: r.timeout}
	}
	if r.limiter == nil {
		r.limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{Now: r.now})
	}
	return r, nil
}

func (r *Resolver) Resolve(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, &domain.KeyFetchError{Reason: domain.KeyUnknown, Err: errors.New("kid is required")}
	}
	if key, ok := r.lookup(kid); ok {
		return key, nil
	}

	// The shared fetch runs detached from any single caller so that one
	// cancelled request does not fail the others waiting on it.
	ch := r.group.DoChan(kid, func() (any, error) {
		return r.fetch(kid)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		key, ok := res.Val.(crypto.PublicKey)
		if !ok || key == nil {
			return nil, &domain.KeyFetchError{KID: kid, Reason: domain.KeyMalformed, Err: errors.New("jwks key is empty")}
		}
		return key, nil
	case <-ctx.Done():
		return nil, &domain.KeyFetchError{KID: kid, Reason: domain.KeyNetwork, Err: ctx.Err()}
	}
}

func (r *Resolver) lookup(kid string) (crypto.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[kid]
	if !ok {
		return nil, false
	}
	if r.now().Sub(entry.fetchedAt) >= r.ttl {
		return nil, false
	}
	return entry.key, true
}

func (r *Resolver) store(kid string, key crypto.PublicKey) {
	r.mu.Lock()
	r.entries[kid] = cacheEntry{key: key, fetchedAt: r.now()}
	r.mu.Unlock()
}

func (r *Resolver) fetch(kid string) (crypto.PublicKey, error) {
	// A flight for this kid may have completed between lookup and DoChan.
	if key, ok := r.lookup(kid); ok {
		return key, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	decision, err := r.limiter.Allow(ctx, "jwks:"+r.url, r.fetchLimit, r.fetchWindow)
	if err != nil {
		log.Warn().Err(err).Str("kid", kid).Msg("jwks rate limiter unavailable, fetching anyway")
	} else if !decision.Allowed {
		return nil, &domain.KeyFetchError{
			KID:    kid,
			Reason: domain.KeyRateLimited,
			Err:    fmt.Errorf("retry after %s", decision.ResetAt.Format(time.RFC3339)),
		}
	}

	log.Debug().Str("kid", kid).Str("url", r.url).Msg("fetching jwks")
	set, err := r.download(ctx)
	if err != nil {
		return nil, &domain.KeyFetchError{KID: kid, Reason: domain.KeyNetwork, Err: err}
	}
	for _, jwk := range set.Keys {
		if jwk.Kid != kid {
			continue
		}
		key, err := jwk.publicKey()
		if err == nil && key == nil {
			err = errors.New("jwks key is empty")
		}
		if err != nil {
			return nil, &domain.KeyFetchError{KID: kid, Reason: domain.KeyMalformed, Err: err}
		}
		r.store(kid, key)
		return key, nil
	}
	return nil, &domain.KeyFetchError{KID: kid, Reason: domain.KeyUnknown, Err: errors.New("no matching key in jwks")}
}

func (r *Resolver) download(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}
	var set keySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return &set, nil
}

type keySet struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	Kty string   `json:"kty"`
	Kid string   `json:"kid"`
	Alg string   `json:"alg"`
	Use string   `json:"use"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	Crv string   `json:"crv"`
	X   string   `json:"x"`
	Y   string   `json:"y"`
	X5c []string `json:"x5c"`
}

func (k jsonWebKey) publicKey() (crypto.PublicKey, error) {
	if k.Use != "" && k.Use != "sig" {
		return nil, fmt.Errorf("key use %q is not sig", k.Use)
	}
	switch k.Kty {
	case "RSA":
		if k.N == "" && len(k.X5c) > 0 {
			return certificateKey(k.X5c[0], k.Kty)
		}
		return rsaKey(k.N, k.E)
	case "EC":
		if k.X == "" && len(k.X5c) > 0 {
			return certificateKey(k.X5c[0], k.Kty)
		}
		return ecKey(k.Crv, k.X, k.Y)
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	if n == "" || e == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(eBytes)
	if !exp.IsInt64() || exp.Int64() <= 0 || exp.Int64() > int64(^uint32(0)>>1) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(exp.Int64())}, nil
}

func ecKey(crv, x, y string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", crv)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, err
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, err
	}
	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("ec point not on curve")
	}
	return pub, nil
}

// certificateKey returns the key of an x5c certificate. The key must be of
// the type named by kty; x509 leaves PublicKey nil for algorithms it does
// not know.
func certificateKey(encoded, kty string) (crypto.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if kty == "RSA" && pub != nil {
			return pub, nil
		}
	case *ecdsa.PublicKey:
		if kty == "EC" && pub != nil {
			return pub, nil
		}
	case nil:
		return nil, fmt.Errorf("unsupported certificate key algorithm %s", cert.PublicKeyAlgorithm)
	}
	return nil, fmt.Errorf("certificate key %T does not match kty %q", cert.PublicKey, kty)
}
