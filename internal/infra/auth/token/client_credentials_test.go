package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"ticketgate/internal/domain"
)

const testTokenEndpoint = "https://idp.test/oauth/token"

func TestClientCredentials_Success(t *testing.T) {
	var got tokenExchangeRequest
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodPost || req.URL.String() != testTokenEndpoint {
				return jsonResponse(http.StatusNotFound, `{}`), nil
			}
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return jsonResponse(http.StatusOK, `{"access_token":"provider-token","token_type":"Bearer","expires_in":86400}`), nil
		}),
	}
	issuer, err := NewClientCredentialsIssuer(ClientCredentialsConfig{
		Endpoint:     testTokenEndpoint,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Audience:     "tickets-api",
		HTTPClient:   client,
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	issued, err := issuer.Issue(context.Background(), domain.TokenRequest{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Token != "provider-token" {
		t.Fatalf("token must be returned verbatim, got %q", issued.Token)
	}
	if issued.ExpiresAt.IsZero() {
		t.Fatal("expected expiry from expires_in")
	}
	want := tokenExchangeRequest{
		GrantType:    "client_credentials",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Audience:     "tickets-api",
	}
	if got != want {
		t.Fatalf("unexpected exchange request: %+v", got)
	}
}

func TestClientCredentials_ProviderRejection(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnauthorized, `{"error":"access_denied","error_description":"Unauthorized"}`), nil
		}),
	}
	issuer, _ := NewClientCredentialsIssuer(ClientCredentialsConfig{
		Endpoint:     testTokenEndpoint,
		ClientID:     "client-id",
		ClientSecret: "wrong",
		HTTPClient:   client,
	})

	_, err := issuer.Issue(context.Background(), domain.TokenRequest{})
	var issueErr *domain.IssuanceError
	if !errors.As(err, &issueErr) {
		t.Fatalf("expected IssuanceError, got %v", err)
	}
	if issueErr.Status != http.StatusUnauthorized || issueErr.Description != "Unauthorized" {
		t.Fatalf("unexpected issuance error: %+v", issueErr)
	}
	if !errors.Is(err, domain.ErrIssuance) {
		t.Fatal("expected error to match ErrIssuance")
	}
}

func TestClientCredentials_NetworkFailure(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("dial tcp: i/o timeout")
		}),
	}
	issuer, _ := NewClientCredentialsIssuer(ClientCredentialsConfig{
		Endpoint:     testTokenEndpoint,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		HTTPClient:   client,
	})
	_, err := issuer.Issue(context.Background(), domain.TokenRequest{})
	var issueErr *domain.IssuanceError
	if !errors.As(err, &issueErr) {
		t.Fatalf("expected IssuanceError, got %v", err)
	}
	if issueErr.Description != "" {
		t.Fatalf("network failures carry no provider description, got %q", issueErr.Description)
	}
}

func TestClientCredentials_RequiresConfig(t *testing.T) {
	if _, err := NewClientCredentialsIssuer(ClientCredentialsConfig{ClientID: "a", ClientSecret: "b"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := NewClientCredentialsIssuer(ClientCredentialsConfig{Endpoint: testTokenEndpoint}); err == nil {
		t.Fatal("expected error without client credentials")
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}
