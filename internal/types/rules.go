// internal/types/rules.go
package types

/*
 * Domain types for rule evaluation.
 *
 * Provides Rule, Insight and MatchID used by internal/rules for compilation
 * and evaluation. These types are wire-format agnostic apart from struct tags;
 * conversion to structpb happens at the API boundary.
 *
 * Key types:
 *   - Rule: templates, metadata and the declarative match document
 *   - Insight: rendered explanation for one matched (rule, record) pair
 *   - MatchID: one (recordId, ruleId) pair of an evaluation pass
 *
 * Dependencies: None (standard library only)
 */

// Rule is a named classification criterion plus its render templates.
// Match holds the declarative match document as decoded from JSON/YAML
// (or a Value); it is only interpreted when the rule is compiled.
type Rule struct {
	ID                  string   `json:"id" yaml:"id"`
	TitleTemplate       string   `json:"titleTemplate" yaml:"titleTemplate"`
	DescriptionTemplate string   `json:"descriptionTemplate" yaml:"descriptionTemplate"`
	SolutionTemplate    string   `json:"solutionTemplate" yaml:"solutionTemplate"`
	Severity            string   `json:"severity" yaml:"severity"`
	Tags                []string `json:"tags" yaml:"tags"`
	Match               any      `json:"matchRule" yaml:"matchRule"`
}

// Insight is the rendered result of a rule applied to one record.
// Produced on demand, never stored.
type Insight struct {
	RecordID    string   `json:"recordId"`
	RuleID      string   `json:"ruleId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Solution    string   `json:"solution"`
	Severity    string   `json:"severity"`
	Tags        []string `json:"tags"`
}

// Positions of the record and rule id in MatchID.Pair.
const (
	MatchIDRecordIndex = 0
	MatchIDRuleIndex   = 1
)

// MatchID is one (recordId, ruleId) pair produced by an evaluation pass.
type MatchID struct {
	RecordID string `json:"recordId"`
	RuleID   string `json:"ruleId"`
}

// Pair returns the ids in tuple form, indexed by MatchIDRecordIndex and
// MatchIDRuleIndex.
func (m MatchID) Pair() [2]string {
	var p [2]string
	p[MatchIDRecordIndex] = m.RecordID
	p[MatchIDRuleIndex] = m.RuleID
	return p
}

// CloneTags returns a copy of a tag list so callers cannot alias rule state.
func CloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	return append([]string(nil), tags...)
}
