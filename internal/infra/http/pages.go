package http

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"ticketgate/internal/config"

	"github.com/gin-gonic/gin"
)

//go:embed pages/*.html
var pageFS embed.FS

var pageTemplates = template.Must(template.ParseFS(pageFS, "pages/*.html"))

func (s *Server) handleIndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", nil)
}

func (s *Server) handleCallbackPage(c *gin.Context) {
	c.HTML(http.StatusOK, "callback.html", nil)
}

// handleTicketPage serves the ticket shell. In jwks mode a browser without a
// bearer token is first sent to the identity provider; the ticket id is kept
// in localStorage so the callback page can return to it.
func (s *Server) handleTicketPage(c *gin.Context) {
	id := c.Param("id")
	if s.cfg.AuthMode == config.AuthModeJWKS && extractBearerToken(c.GetHeader("Authorization")) == "" {
		c.HTML(http.StatusOK, "login_redirect.html", gin.H{
			"TicketID":     id,
			"AuthorizeURL": s.authorizeURL(c),
		})
		return
	}
	c.HTML(http.StatusOK, "ticket.html", gin.H{"TicketID": id})
}

func (s *Server) authorizeURL(c *gin.Context) string {
	q := url.Values{}
	q.Set("response_type", "token")
	q.Set("client_id", s.cfg.IDPClientID)
	q.Set("redirect_uri", requestOrigin(c)+"/callback")
	if s.cfg.IDPAudience != "" {
		q.Set("audience", s.cfg.IDPAudience)
	}
	return s.cfg.IDPBaseURL() + "/authorize?" + q.Encode()
}
