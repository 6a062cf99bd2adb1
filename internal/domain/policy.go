package domain

import "context"

// PolicyInput is the document an issuance policy sees as `input`.
type PolicyInput struct {
	Authenticated bool           `json:"authenticated"`
	Subject       string         `json:"subject,omitempty"`
	Issuer        string         `json:"issuer,omitempty"`
	App           string         `json:"app,omitempty"`
	Claims        map[string]any `json:"claims,omitempty"`
	VATIN         string         `json:"vatin"`
}

type PolicyDecision struct {
	Allow bool     `json:"allow"`
	Deny  []string `json:"deny,omitempty"`
}

type IssuancePolicy interface {
	Evaluate(ctx context.Context, input PolicyInput) (PolicyDecision, error)
}
