package rules

import (
	"github.com/davidespo/rules-engine/internal/types"
)

// Engine holds an ordered rule collection and evaluates records against it.
// Rules are compiled from scratch on every EvaluateAll/EvaluateOne call.
//
// Engine does no locking; callers that share one across goroutines must
// synchronise mutation with evaluation themselves.
type Engine struct {
	rules    []types.Rule
	renderer TemplateRenderer
	observer RenderObserver
}

// NewEngine creates an engine with an initial rule list.
// Panics if renderer is nil.
func NewEngine(renderer TemplateRenderer, rules ...types.Rule) *Engine {
	if renderer == nil {
		panic("rules: renderer cannot be nil")
	}
	return &Engine{
		rules:    append([]types.Rule(nil), rules...),
		renderer: renderer,
	}
}

// ObserveRenderFailures registers fn to be called for every field that fails
// to render. Pass nil to stop observing.
func (e *Engine) ObserveRenderFailures(fn RenderObserver) {
	e.observer = fn
}

// AddRule appends rule. Duplicate ids are allowed.
func (e *Engine) AddRule(rule types.Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns a copy of the rule collection in insertion order.
func (e *Engine) Rules() []types.Rule {
	return append([]types.Rule(nil), e.rules...)
}

// Rule returns the first rule with the given id.
func (e *Engine) Rule(id string) (types.Rule, bool) {
	for _, r := range e.rules {
		if r.ID == id {
			return r, true
		}
	}
	return types.Rule{}, false
}

// RemoveRule removes the first rule with the given id. No-op when absent.
func (e *Engine) RemoveRule(id string) {
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i:i], e.rules[i+1:]...)
			return
		}
	}
}

// ClearRules removes every rule.
func (e *Engine) ClearRules() {
	e.rules = nil
}

// Len returns the number of rules.
func (e *Engine) Len() int { return len(e.rules) }

// EvaluateAll compiles every rule and returns the matching (record, rule)
// pairs, records-outer and rules-inner. A rule that fails to compile aborts
// the whole pass with a *CompileError.
func (e *Engine) EvaluateAll(records []types.Record) ([]types.MatchID, error) {
	compiled, err := CompileRules(e.rules, e.renderer, e.observer)
	if err != nil {
		return nil, err
	}
	return EvaluateRecords(compiled, records), nil
}

// EvaluateOne renders the insight of rule ruleID for record. The rule's
// predicate is not evaluated: callers pass pairs produced by EvaluateAll.
// ok is false when no rule has that id.
func (e *Engine) EvaluateOne(ruleID string, record types.Record) (types.Insight, bool, error) {
	rule, ok := e.Rule(ruleID)
	if !ok {
		return types.Insight{}, false, nil
	}
	compiled, err := CompileRule(rule, e.renderer, e.observer)
	if err != nil {
		return types.Insight{}, false, err
	}
	return compiled.Insight(record), true, nil
}
