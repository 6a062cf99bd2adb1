package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"ticketgate/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.tickets.issuance"

// Engine evaluates the issuance policy. The policy package must be
// `tickets.issuance` and define `allow`; an optional `deny` set carries
// human-readable reasons.
type Engine struct {
	query rego.PreparedEvalQuery
}

func NewEngineFromPath(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return nil, errors.New("policy path is required")
	}
	return newEngine(ctx, rego.Load([]string{path}, nil))
}

func NewEngineFromModule(ctx context.Context, filename, source string) (*Engine, error) {
	return newEngine(ctx, rego.Module(filename, source))
}

func newEngine(ctx context.Context, source func(*rego.Rego)) (*Engine, error) {
	compiler := ast.NewCompiler()
	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		source,
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyDecision, error) {
	if e == nil {
		return domain.PolicyDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyDecision{Allow: false, Deny: []string{"policy produced no decision"}}, nil
	}
	payload, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	var decision domain.PolicyDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.PolicyDecision{}, err
	}
	if len(decision.Deny) == 0 {
		decision.Deny = nil
		return decision, nil
	}
	sort.Strings(decision.Deny)
	decision.Allow = false
	return decision, nil
}
