// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/davidespo/rules-engine/internal/types"
)

/*
 * Rule evaluation orchestration.
 *
 * Compiles types.Rule into CompiledRule (predicate plus render functions) and
 * runs compiled rules over record batches.
 *
 * Evaluation flow:
 *   1. CompileRules compiles every rule in order; the first failure aborts
 *      and is returned as *CompileError naming the rule
 *   2. EvaluateRecords iterates records in order and, per record, rules in
 *      order, emitting one MatchID per satisfied predicate
 *
 * Output order is records-outer, rules-inner. Duplicate rule ids produce
 * duplicate MatchIDs.
 */

// CompileError reports a rule whose match document could not be compiled.
type CompileError struct {
	RuleID string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile rule %q: %v", e.RuleID, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// CompiledRule is a rule ready for evaluation. Built per call, never cached.
type CompiledRule struct {
	types.Rule

	Predicate   Predicate
	Title       RenderFunc
	Description RenderFunc
	Solution    RenderFunc
}

// CompileRule compiles rule's match document and binds its templates to
// renderer. observer may be nil.
func CompileRule(rule types.Rule, renderer TemplateRenderer, observer RenderObserver) (*CompiledRule, error) {
	pred, err := CompileMatch(rule.Match)
	if err != nil {
		return nil, &CompileError{RuleID: rule.ID, Err: err}
	}

	return &CompiledRule{
		Rule:        rule,
		Predicate:   pred,
		Title:       renderField(renderer, observer, rule, FieldTitle, rule.TitleTemplate),
		Description: renderField(renderer, observer, rule, FieldDescription, rule.DescriptionTemplate),
		Solution:    renderField(renderer, observer, rule, FieldSolution, rule.SolutionTemplate),
	}, nil
}

// Matches reports whether record satisfies the rule.
func (c *CompiledRule) Matches(record types.Record) bool {
	return c.Predicate(record.Fields)
}

// Insight renders the rule against record. The predicate is not consulted.
func (c *CompiledRule) Insight(record types.Record) types.Insight {
	return types.Insight{
		RecordID:    record.ID,
		RuleID:      c.ID,
		Title:       c.Title(record.Fields),
		Description: c.Description(record.Fields),
		Solution:    c.Solution(record.Fields),
		Severity:    c.Severity,
		Tags:        types.CloneTags(c.Tags),
	}
}

// CompileRules compiles rules in order, stopping at the first failure.
func CompileRules(rules []types.Rule, renderer TemplateRenderer, observer RenderObserver) ([]*CompiledRule, error) {
	compiled := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		c, err := CompileRule(r, renderer, observer)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}
	return compiled, nil
}

// EvaluateRecords returns every (record, rule) pair whose predicate holds,
// records-outer and rules-inner.
func EvaluateRecords(compiled []*CompiledRule, records []types.Record) []types.MatchID {
	matches := make([]types.MatchID, 0)
	for _, rec := range records {
		for _, c := range compiled {
			if c.Matches(rec) {
				matches = append(matches, types.MatchID{RecordID: rec.ID, RuleID: c.ID})
			}
		}
	}
	return matches
}
