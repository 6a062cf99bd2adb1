package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ticketgate/internal/config"
	"ticketgate/internal/domain"
	"ticketgate/internal/infra/auth/jwks"
	"ticketgate/internal/infra/auth/token"
	"ticketgate/internal/infra/db"
	"ticketgate/internal/infra/policyopa"
	"ticketgate/internal/infra/qrcode"
	"ticketgate/internal/infra/ratelimit"
	"ticketgate/internal/infra/ticketmem"
	"ticketgate/internal/logging"
	"ticketgate/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	tickets  *usecase.TicketService
	verifier domain.TokenVerifier
	issuer   domain.TokenIssuer
	qr       *qrcode.Encoder
	initErr  error

	redis             *ratelimit.RedisLimiter
	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	s := &Server{cfg: cfg, store: store, r: newEngine()}

	var repo domain.TicketRepository
	if store != nil && store.DB != nil {
		repo = db.NewTicketRepository(store.DB)
	} else {
		repo = ticketmem.New()
	}
	var policy domain.IssuancePolicy
	if cfg.IssuancePolicy != "" {
		engine, err := policyopa.NewEngineFromPath(context.Background(), cfg.IssuancePolicy)
		if err != nil {
			s.initErr = fmt.Errorf("load issuance policy: %w", err)
		} else {
			policy = engine
		}
	}
	s.tickets = usecase.NewTicketService(repo, policy)
	s.qr = qrcode.NewEncoder(0)

	s.initRateLimit(nil)
	s.initAuth()
	s.checkGatePlacement()
	s.routes()
	return s
}

type ServerDeps struct {
	Tickets     domain.TicketRepository
	Policy      domain.IssuancePolicy
	Verifier    domain.TokenVerifier
	Issuer      domain.TokenIssuer
	RateLimiter domain.RateLimiter
	Now         func() time.Time
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	s := &Server{
		cfg:      cfg,
		r:        newEngine(),
		verifier: deps.Verifier,
		issuer:   deps.Issuer,
		qr:       qrcode.NewEncoder(0),
	}
	repo := deps.Tickets
	if repo == nil {
		repo = ticketmem.New()
	}
	s.tickets = usecase.NewTicketService(repo, deps.Policy)
	s.tickets.Now = deps.Now

	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.checkGatePlacement()
	s.routes()
	return s
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger())
	return r
}

func (s *Server) initAuth() {
	if s.verifier != nil && s.issuer != nil {
		return
	}
	switch s.cfg.AuthMode {
	case config.AuthModeSharedSecret:
		s.initSharedSecret()
	case config.AuthModeJWKS:
		s.initJWKS()
	case "":
		s.initErr = errors.New("AUTH_MODE is required")
	default:
		s.initErr = fmt.Errorf("unsupported auth mode %q", s.cfg.AuthMode)
	}
}

func (s *Server) checkGatePlacement() {
	if s.initErr != nil {
		return
	}
	switch s.cfg.GatePlacement {
	case config.GateBeforeAll, config.GateAfterPublic:
	case "":
		s.initErr = errors.New("GATE_PLACEMENT is required")
	default:
		s.initErr = fmt.Errorf("unsupported gate placement %q", s.cfg.GatePlacement)
	}
}

func (s *Server) initSharedSecret() {
	if s.cfg.TokenKey == "" {
		s.initErr = errors.New("TOKEN_KEY is required in shared_secret mode")
		return
	}
	secret := []byte(s.cfg.TokenKey)
	if s.verifier == nil {
		verifier, err := token.NewSharedSecretVerifier(secret, s.cfg.TokenIssuer, token.WithLeeway(s.cfg.ClockSkew()))
		if err != nil {
			s.initErr = err
			return
		}
		log.Info().Stringer("verifier", verifier).Msg("token verifier ready")
		s.verifier = verifier
	}
	if s.issuer == nil {
		var opts []token.SelfIssuerOption
		if s.cfg.TokenUsers != "" {
			creds, err := token.ParseCredentials(s.cfg.TokenUsers)
			if err != nil {
				s.initErr = fmt.Errorf("TOKEN_USERS: %w", err)
				return
			}
			log.Info().Int("users", creds.Len()).Msg("token user credentials loaded")
			opts = append(opts, token.WithCredentials(creds))
		}
		issuer, err := token.NewSelfIssuer(secret, s.cfg.TokenIssuer, opts...)
		if err != nil {
			s.initErr = err
			return
		}
		s.issuer = issuer
	}
}

func (s *Server) initJWKS() {
	if s.verifier == nil {
		opts := []jwks.Option{
			jwks.WithCacheTTL(s.cfg.JWKSCacheTTL()),
			jwks.WithFetchTimeout(s.cfg.IDPTimeout()),
		}
		// A redis limiter shares the fetch budget across replicas.
		var keyLimiter domain.RateLimiter
		if s.redis != nil {
			keyLimiter = s.redis
		}
		opts = append(opts, jwks.WithRateLimiter(keyLimiter, s.cfg.JWKSRateLimitPerMinute, time.Minute))
		resolver, err := jwks.NewResolver(s.cfg.JWKSEndpoint(), opts...)
		if err != nil {
			s.initErr = fmt.Errorf("IDP_DOMAIN or JWKS_URL is required in jwks mode: %w", err)
			return
		}
		verifier, err := token.NewJWKSVerifier(resolver, s.cfg.Issuer(), s.cfg.IDPAudience, token.WithLeeway(s.cfg.ClockSkew()))
		if err != nil {
			s.initErr = err
			return
		}
		log.Info().Stringer("verifier", verifier).Msg("token verifier ready")
		s.verifier = verifier
	}
	if s.issuer == nil {
		issuer, err := token.NewClientCredentialsIssuer(token.ClientCredentialsConfig{
			Endpoint:     s.cfg.TokenEndpoint(),
			ClientID:     s.cfg.IDPClientID,
			ClientSecret: s.cfg.IDPClientSecret,
			Audience:     s.cfg.IDPAudience,
			Timeout:      s.cfg.IDPTimeout(),
		})
		if err != nil {
			s.initErr = err
			return
		}
		s.issuer = issuer
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if s.cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("redis rate limiter unavailable; using in-memory limits")
		} else {
			s.redis = limiter
		}
	}
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.redis != nil {
			s.rateLimiter = s.redis
		} else {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
}

func (s *Server) routes() {
	if len(s.cfg.CORSAllowOrigins) > 0 {
		s.r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORSAllowOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	s.r.SetHTMLTemplate(pageTemplates)

	// Middleware registered on the engine only applies to routes added after it.
	// checkGatePlacement has rejected any other value before this point.
	if s.cfg.GatePlacement == config.GateBeforeAll {
		s.r.Use(s.authenticate)
	}

	s.r.GET("/healthz", s.handleHealth)
	s.r.GET("/", s.handleIndexPage)
	s.r.GET("/callback", s.handleCallbackPage)
	s.r.GET("/ticket/:id", s.handleTicketPage)
	s.r.GET("/ticket-count", s.handleTicketCount)
	s.r.GET("/api/ticket/:id", s.handleGetTicket)
	s.r.POST("/auth/token", s.rateLimit(routeAuthToken), s.handleIssueToken)

	protected := s.r.Group("/")
	if s.cfg.GatePlacement != config.GateBeforeAll {
		protected.Use(s.authenticate)
	}
	if s.cfg.IssuancePublic {
		protected.POST("/generate-ticket", s.rateLimit(routeGenerateTicket), s.handleGenerateTicket)
	} else {
		protected.POST("/generate-ticket", s.requireAuthentication, s.rateLimit(routeGenerateTicket), s.handleGenerateTicket)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.redis != nil {
		defer s.redis.Close()
	}
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", s.cfg.HTTPAddr).
			Str("auth_mode", s.cfg.AuthMode).
			Str("gate", s.cfg.GatePlacement).
			Msg("ticketd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
