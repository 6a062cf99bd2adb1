package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ticketgate/internal/domain"
)

const defaultExchangeTimeout = 5 * time.Second

// ClientCredentialsIssuer obtains tokens from the identity provider with the
// OAuth client-credentials grant and returns them verbatim.
type ClientCredentialsIssuer struct {
	endpoint     string
	clientID     string
	clientSecret string
	audience     string
	httpClient   *http.Client
	now          func() time.Time
}

type ClientCredentialsConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Audience     string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

func NewClientCredentialsIssuer(cfg ClientCredentialsConfig) (*ClientCredentialsIssuer, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("IDP_DOMAIN is required for delegated issuance")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("IDP_CLIENT_ID and IDP_CLIENT_SECRET are required for delegated issuance")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultExchangeTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ClientCredentialsIssuer{
		endpoint:     cfg.Endpoint,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		audience:     cfg.Audience,
		httpClient:   client,
		now:          time.Now,
	}, nil
}

type tokenExchangeRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience,omitempty"`
}

type tokenExchangeResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Issue ignores the request body; the service authenticates as itself.
func (c *ClientCredentialsIssuer) Issue(ctx context.Context, _ domain.TokenRequest) (domain.IssuedToken, error) {
	payload, err := json.Marshal(tokenExchangeRequest{
		GrantType:    "client_credentials",
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Audience:     c.audience,
	})
	if err != nil {
		return domain.IssuedToken{}, &domain.IssuanceError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.IssuedToken{}, &domain.IssuanceError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.IssuedToken{}, &domain.IssuanceError{Err: err}
	}
	defer resp.Body.Close()

	var body tokenExchangeResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.IssuedToken{}, &domain.IssuanceError{Status: resp.StatusCode, Err: err}
	}
	decodeErr := json.Unmarshal(raw, &body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		desc := body.ErrorDescription
		if desc == "" {
			desc = body.Error
		}
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return domain.IssuedToken{}, &domain.IssuanceError{Status: resp.StatusCode, Description: desc}
	}
	if decodeErr != nil {
		return domain.IssuedToken{}, &domain.IssuanceError{Status: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", decodeErr)}
	}
	if body.AccessToken == "" {
		return domain.IssuedToken{}, &domain.IssuanceError{Status: resp.StatusCode, Err: errors.New("token response missing access_token")}
	}

	issued := domain.IssuedToken{Token: body.AccessToken}
	if body.ExpiresIn > 0 {
		issued.ExpiresAt = c.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return issued, nil
}
