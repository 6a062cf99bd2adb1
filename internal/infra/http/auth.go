package http

import (
	"errors"
	"net/http"
	"strings"

	"ticketgate/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// authenticate attaches the verified identity to the request context. A
// request without a bearer token passes through unauthenticated; a token
// that fails verification ends the request.
func (s *Server) authenticate(c *gin.Context) {
	raw := extractBearerToken(c.GetHeader("Authorization"))
	if raw == "" {
		c.Next()
		return
	}
	if s.verifier == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		c.Abort()
		return
	}
	identity, err := s.verifier.Verify(c.Request.Context(), raw)
	if err != nil {
		event := log.Debug().Err(err)
		var verr *domain.VerificationError
		if errors.As(err, &verr) {
			event = event.Str("reason", string(verr.Reason))
		}
		event.Msg("token rejected")
		writeErrorCode(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid Token")
		c.Abort()
		return
	}
	c.Request = c.Request.WithContext(domain.WithIdentity(c.Request.Context(), identity))
	c.Next()
}

func (s *Server) requireAuthentication(c *gin.Context) {
	if _, ok := domain.IdentityFromContext(c.Request.Context()); ok {
		c.Next()
		return
	}
	c.Header("WWW-Authenticate", "Bearer")
	c.String(http.StatusUnauthorized, "Authentication is needed")
	c.Abort()
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
