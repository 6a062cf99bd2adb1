package policyopa

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
)

// Issuance policies decide on request data only; anything that reaches the
// network, the clock or the filesystem is rejected at load time.
var allowedBuiltins = map[string]struct{}{
	"and":               {},
	"assign":            {},
	"concat":            {},
	"contains":          {},
	"count":             {},
	"endswith":          {},
	"eq":                {},
	"equal":             {},
	"gt":                {},
	"gte":               {},
	"internal.member_2": {},
	"internal.member_3": {},
	"lower":             {},
	"lt":                {},
	"lte":               {},
	"neq":               {},
	"object.get":        {},
	"or":                {},
	"regex.match":       {},
	"split":             {},
	"sprintf":           {},
	"startswith":        {},
	"trim_space":        {},
	"upper":             {},
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	check := func(name string) {
		if _, ok := ast.BuiltinMap[name]; !ok {
			return
		}
		if _, ok := allowedBuiltins[name]; ok {
			return
		}
		forbidden[name] = struct{}{}
	}
	for _, module := range compiler.Modules {
		ast.WalkExprs(module, func(expr *ast.Expr) bool {
			if expr.IsCall() {
				check(expr.Operator().String())
			}
			return false
		})
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			check(call[0].Value.String())
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
