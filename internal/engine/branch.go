package engine

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/opencom-org/series/pkg/api"
)

// Branch outcome values exposed to connection conditions as "outcome".
const (
	// outcomeSent is set after a chat or email block delivered its message.
	outcomeSent = "sent"
	// outcomeWaited is set when the traversal advances past a wait block.
	outcomeWaited = "waited"
)

// branchEvaluator evaluates connection branch conditions with expr.
// Compiled programs are cached per expression; the same condition string
// is typically shared by every progress traversing the edge.
type branchEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newBranchEvaluator() *branchEvaluator {
	return &branchEvaluator{cache: make(map[string]*vm.Program)}
}

// branchEnv builds the environment a branch condition is evaluated in:
// the executed block's outcome plus the visitor's attribute maps.
func branchEnv(outcome string, snap api.VisitorSnapshot) map[string]any {
	attrs := snap.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	custom := snap.CustomAttributes
	if custom == nil {
		custom = map[string]any{}
	}
	return map[string]any{
		"outcome":    outcome,
		"attributes": attrs,
		"custom":     custom,
	}
}

// Evaluate runs the expression against env. The expression must evaluate
// to a boolean; anything else is an error. Callers treat errors as a
// non-match so a malformed condition falls through to the default edge.
func (e *branchEvaluator) Evaluate(expression string, env map[string]any) (bool, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if !ok {
		e.mu.Lock()
		if program, ok = e.cache[expression]; !ok {
			var err error
			program, err = expr.Compile(expression, expr.Env(env))
			if err != nil {
				e.mu.Unlock()
				return false, err
			}
			e.cache[expression] = program
		}
		e.mu.Unlock()
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	if b, ok := result.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("condition %q evaluated to %T, want bool", expression, result)
}
