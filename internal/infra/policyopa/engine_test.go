package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"ticketgate/internal/domain"
)

const testPolicy = `package tickets.issuance

import rego.v1

default allow := false

allow if {
	input.authenticated
	count(deny) == 0
}

deny contains "vatin must be 11 digits" if {
	not regex.match("^[0-9]{11}$", input.vatin)
}

deny contains "service tokens only" if {
	input.app != "ticket-app"
}
`

func TestEngine_AllowsMatchingInput(t *testing.T) {
	engine := newTestEngine(t)
	decision, err := engine.Evaluate(context.Background(), domain.PolicyInput{
		Authenticated: true,
		App:           "ticket-app",
		VATIN:         "12345678901",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allow || len(decision.Deny) != 0 {
		t.Fatalf("expected allow, got %+v", decision)
	}
}

func TestEngine_Denies(t *testing.T) {
	engine := newTestEngine(t)
	tests := []struct {
		name  string
		input domain.PolicyInput
		want  []string
	}{
		{
			name:  "unauthenticated",
			input: domain.PolicyInput{App: "ticket-app", VATIN: "12345678901"},
			want:  nil,
		},
		{
			name:  "bad vatin",
			input: domain.PolicyInput{Authenticated: true, App: "ticket-app", VATIN: "12-34"},
			want:  []string{"vatin must be 11 digits"},
		},
		{
			name:  "wrong app and vatin",
			input: domain.PolicyInput{Authenticated: true, App: "other", VATIN: "x"},
			want:  []string{"service tokens only", "vatin must be 11 digits"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := engine.Evaluate(context.Background(), tc.input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if decision.Allow {
				t.Fatal("expected deny")
			}
			if !reflect.DeepEqual(decision.Deny, tc.want) {
				t.Fatalf("unexpected deny reasons: %v", decision.Deny)
			}
		})
	}
}

func TestEngine_LoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issuance.rego")
	if err := os.WriteFile(path, []byte(testPolicy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if _, err := NewEngineFromPath(context.Background(), path); err != nil {
		t.Fatalf("load policy: %v", err)
	}
}

func TestEngine_RejectsForbiddenBuiltins(t *testing.T) {
	policy := `package tickets.issuance

import rego.v1

allow if {
	resp := http.send({"method": "GET", "url": "https://example.test"})
	resp.status_code == 200
}
`
	if _, err := NewEngineFromModule(context.Background(), "net.rego", policy); err == nil {
		t.Fatal("expected http.send to be rejected")
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngineFromModule(context.Background(), "issuance.rego", testPolicy)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}
