package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticketgate/internal/domain"
	"ticketgate/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	maxTokenRequestBytes = 16 << 10
	healthCheckTimeout   = 2 * time.Second
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type generateTicketRequest struct {
	VATIN     string `json:"vatin"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	body := gin.H{"mode": "no-db", "auth": s.cfg.AuthMode}
	if s.store != nil && s.store.DB != nil {
		body["mode"] = "db"
		body["db"] = "up"
		if err := s.store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health: database ping failed")
			body["db"] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	if s.redis != nil {
		body["redis"] = "up"
		if err := s.redis.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health: redis ping failed")
			body["redis"] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	body["status"] = status
	c.JSON(code, body)
}

func (s *Server) handleIssueToken(c *gin.Context) {
	if s.issuer == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return
	}
	var req domain.TokenRequest
	if c.Request.Body != nil {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTokenRequestBytes))
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
				return
			}
		}
	}

	issued, err := s.issuer.Issue(c.Request.Context(), req)
	if err != nil {
		var issErr *domain.IssuanceError
		if errors.As(err, &issErr) && issErr.Description != "" {
			log.Warn().Int("status", issErr.Status).Str("description", issErr.Description).Msg("identity provider rejected token request")
			c.JSON(http.StatusBadRequest, gin.H{"error": issErr.Description})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: issued.Token})
}

func (s *Server) handleTicketCount(c *gin.Context) {
	count, err := s.tickets.CountTickets(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalTickets": strconv.FormatInt(count, 10)})
}

func (s *Server) handleGenerateTicket(c *gin.Context) {
	var req generateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	in := usecase.IssueTicketInput{
		VATIN:     req.VATIN,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if identity, ok := domain.IdentityFromContext(c.Request.Context()); ok {
		in.Identity = &identity
	}

	ticket, err := s.tickets.IssueTicket(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	locator := ticketLocator(c, ticket.ID)
	c.Header("Content-Type", s.qr.ContentType())
	c.Status(http.StatusOK)
	if err := s.qr.Encode(c.Writer, locator); err != nil {
		// Nothing has been written yet, so the status can still change.
		log.Error().Err(err).Str("ticket_id", ticket.ID).Msg("encode ticket qr")
		c.Header("Content-Type", "application/json; charset=utf-8")
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "Server error")
	}
}

func (s *Server) handleGetTicket(c *gin.Context) {
	ticket, err := s.tickets.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

// ticketLocator builds the public URL of a ticket page from the request
// origin. X-Forwarded-Proto is honoured for TLS-terminating proxies.
func ticketLocator(c *gin.Context, id string) string {
	return requestOrigin(c) + "/ticket/" + id
}

func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		proto = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
		if proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + c.Request.Host
}

func writeError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL", "Server error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code, message = http.StatusBadRequest, "VALIDATION", "Missing required fields"
	case errors.Is(err, domain.ErrQuotaExceeded):
		status, code, message = http.StatusBadRequest, "QUOTA_EXCEEDED", "Maximum 3 tickets per OIB"
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "Ticket not found"
	case errors.Is(err, domain.ErrForbidden):
		status, code, message = http.StatusForbidden, "FORBIDDEN", "Ticket issuance not permitted"
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, code, message = http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "Invalid Token"
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
