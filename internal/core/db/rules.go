package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/davidespo/rules-engine/internal/types"
)

// StoredRule is a rule plus its storage metadata.
type StoredRule struct {
	types.Rule
	Position  int64
	CreatedAt time.Time
}

// ruleRow mirrors the rules table. Tags and the match document are JSON text
// so the same schema works on SQLite and PostgreSQL.
type ruleRow struct {
	RuleID              string    `db:"rule_id"`
	Position            int64     `db:"position"`
	TitleTemplate       string    `db:"title_template"`
	DescriptionTemplate string    `db:"description_template"`
	SolutionTemplate    string    `db:"solution_template"`
	Severity            string    `db:"severity"`
	Tags                string    `db:"tags"`
	MatchSpec           string    `db:"match_spec"`
	CreatedAt           time.Time `db:"created_at"`
}

// RuleRepository persists rule documents in evaluation order.
type RuleRepository struct {
	q *Queries
}

// NewRuleRepository loads the named queries for db.
func NewRuleRepository(db *sqlx.DB) (*RuleRepository, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &RuleRepository{q: q}, nil
}

// List returns every stored rule ordered by position.
func (r *RuleRepository) List(ctx context.Context) ([]StoredRule, error) {
	var rows []ruleRow
	if err := r.q.Select(ctx, "list-rules", &rows); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	out := make([]StoredRule, 0, len(rows))
	for _, row := range rows {
		sr, err := row.toStored()
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, nil
}

// Rules returns the stored rules in evaluation order without metadata.
func (r *RuleRepository) Rules(ctx context.Context) ([]types.Rule, error) {
	stored, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]types.Rule, len(stored))
	for i, sr := range stored {
		rules[i] = sr.Rule
	}
	return rules, nil
}

// Get returns one rule by id, or types.ErrRuleNotFound.
func (r *RuleRepository) Get(ctx context.Context, id string) (StoredRule, error) {
	var row ruleRow
	err := r.q.Get(ctx, "get-rule", &row, id)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredRule{}, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	if err != nil {
		return StoredRule{}, fmt.Errorf("get rule %s: %w", id, err)
	}
	return row.toStored()
}

// Save inserts a new rule at the end of the order, or updates an existing
// rule in place. Rules without an id get a generated one, which is returned.
func (r *RuleRepository) Save(ctx context.Context, rule types.Rule) (string, error) {
	if rule.ID == "" {
		rule.ID = types.NewRuleID()
	}

	tags, err := json.Marshal(nonNilTags(rule.Tags))
	if err != nil {
		return "", fmt.Errorf("encode tags for rule %s: %w", rule.ID, err)
	}
	match, err := encodeMatch(rule.Match)
	if err != nil {
		return "", fmt.Errorf("encode match for rule %s: %w", rule.ID, err)
	}

	_, err = r.Get(ctx, rule.ID)
	switch {
	case err == nil:
		_, err = r.q.Exec(ctx, "update-rule",
			rule.TitleTemplate, rule.DescriptionTemplate, rule.SolutionTemplate,
			rule.Severity, string(tags), match, rule.ID)
		if err != nil {
			return "", fmt.Errorf("update rule %s: %w", rule.ID, err)
		}
		return rule.ID, nil
	case !errors.Is(err, types.ErrRuleNotFound):
		return "", err
	}

	var position int64
	if err := r.q.Get(ctx, "next-rule-position", &position); err != nil {
		return "", fmt.Errorf("next rule position: %w", err)
	}

	createdAt := types.RuleIDTime(rule.ID)
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.q.Exec(ctx, "insert-rule",
		rule.ID, position, rule.TitleTemplate, rule.DescriptionTemplate, rule.SolutionTemplate,
		rule.Severity, string(tags), match, createdAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}
	return rule.ID, nil
}

// SaveAll saves rules in order and returns their ids.
func (r *RuleRepository) SaveAll(ctx context.Context, rules []types.Rule) ([]string, error) {
	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		id, err := r.Save(ctx, rule)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes one rule, or returns types.ErrRuleNotFound.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.Exec(ctx, "delete-rule", id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	return nil
}

// Clear removes every rule and returns how many were deleted.
func (r *RuleRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.q.Exec(ctx, "clear-rules")
	if err != nil {
		return 0, fmt.Errorf("clear rules: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored rules.
func (r *RuleRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.Get(ctx, "count-rules", &n); err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return n, nil
}

func (row ruleRow) toStored() (StoredRule, error) {
	var tags []string
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return StoredRule{}, fmt.Errorf("decode tags for rule %s: %w", row.RuleID, err)
	}
	var match any
	if err := json.Unmarshal([]byte(row.MatchSpec), &match); err != nil {
		return StoredRule{}, fmt.Errorf("decode match for rule %s: %w", row.RuleID, err)
	}

	return StoredRule{
		Rule: types.Rule{
			ID:                  row.RuleID,
			TitleTemplate:       row.TitleTemplate,
			DescriptionTemplate: row.DescriptionTemplate,
			SolutionTemplate:    row.SolutionTemplate,
			Severity:            row.Severity,
			Tags:                tags,
			Match:               match,
		},
		Position:  row.Position,
		CreatedAt: row.CreatedAt,
	}, nil
}

// encodeMatch normalises a decoded match document (JSON, YAML or Value)
// to JSON text.
func encodeMatch(match any) (string, error) {
	v, err := types.FromAny(match)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
