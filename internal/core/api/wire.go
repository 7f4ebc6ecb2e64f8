package api

import (
	"fmt"

	"github.com/davidespo/rules-engine/internal/types"
)

// Wire field names shared by the gRPC (structpb) and HTTP (JSON) surfaces.
const (
	fieldRecords = "records"
	fieldRecord  = "record"
	fieldRuleID  = "ruleId"
	fieldMatches = "matches"
	fieldFound   = "found"
	fieldInsight = "insight"
	fieldRules   = "rules"
)

// DecodeRecords converts a decoded "records" list into records.
func DecodeRecords(raw any) ([]types.Record, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidRequest, fieldRecords)
	}
	records := make([]types.Record, 0, len(list))
	for i, r := range list {
		rec, err := DecodeRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", fieldRecords, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeRecord converts one decoded record object.
func DecodeRecord(raw any) (types.Record, error) {
	if _, ok := raw.(map[string]any); !ok {
		return types.Record{}, fmt.Errorf("%w: record must be an object", ErrInvalidRequest)
	}
	return types.RecordFromAny(raw)
}

// MatchesPayload is the evaluate response body.
func MatchesPayload(matches []types.MatchID) map[string]any {
	out := make([]any, len(matches))
	for i, m := range matches {
		out[i] = map[string]any{
			"recordId": m.RecordID,
			"ruleId":   m.RuleID,
		}
	}
	return map[string]any{fieldMatches: out}
}

// InsightPayload is the insight response body. The insight is omitted when
// found is false.
func InsightPayload(insight types.Insight, found bool) map[string]any {
	out := map[string]any{fieldFound: found}
	if found {
		out[fieldInsight] = map[string]any{
			"recordId":    insight.RecordID,
			"ruleId":      insight.RuleID,
			"title":       insight.Title,
			"description": insight.Description,
			"solution":    insight.Solution,
			"severity":    insight.Severity,
			"tags":        stringList(insight.Tags),
		}
	}
	return out
}

// RulesPayload is the list-rules response body.
func RulesPayload(rs []types.Rule) map[string]any {
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = rulePayload(r)
	}
	return map[string]any{fieldRules: out}
}

func rulePayload(r types.Rule) map[string]any {
	// Normalise YAML ints and Values to the JSON generic form
	var match any
	if v, err := types.FromAny(r.Match); err == nil {
		match = v.ToAny()
	}
	return map[string]any{
		"id":                  r.ID,
		"titleTemplate":       r.TitleTemplate,
		"descriptionTemplate": r.DescriptionTemplate,
		"solutionTemplate":    r.SolutionTemplate,
		"severity":            r.Severity,
		"tags":                stringList(r.Tags),
		"matchRule":           match,
	}
}

// stringList converts to []any, the list form structpb accepts.
func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
