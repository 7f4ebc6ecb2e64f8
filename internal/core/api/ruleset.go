package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/davidespo/rules-engine/internal/core/metrics"
	"github.com/davidespo/rules-engine/internal/logging"
	"github.com/davidespo/rules-engine/internal/rules"
	"github.com/davidespo/rules-engine/internal/types"
)

// ErrRuleSource wraps failures to read rules from their source.
var ErrRuleSource = errors.New("rule source unavailable")

// RuleSource supplies the rule list for a reload.
// Implemented by loader.FileSource and db.RuleRepository.
type RuleSource interface {
	Rules(ctx context.Context) ([]types.Rule, error)
}

// RuleSet is the service's active rule collection. Reloads swap the whole
// engine under a write lock; evaluations hold the read lock.
type RuleSet struct {
	mu       sync.RWMutex
	engine   *rules.Engine
	renderer rules.TemplateRenderer
	metrics  *metrics.EvaluationMetrics
	logger   *zap.Logger
}

// NewRuleSet creates an empty rule set. m may be nil.
func NewRuleSet(renderer rules.TemplateRenderer, m *metrics.EvaluationMetrics, logger *zap.Logger) *RuleSet {
	logger = logging.OrNop(logger)
	s := &RuleSet{
		renderer: renderer,
		metrics:  m,
		logger:   logger,
	}
	s.engine = s.newEngine(nil)
	return s
}

func (s *RuleSet) newEngine(rs []types.Rule) *rules.Engine {
	e := rules.NewEngine(s.renderer, rs...)
	e.ObserveRenderFailures(func(f rules.RenderFailure) {
		s.logger.Warn("insight field render failed",
			zap.String("rule_id", f.RuleID),
			zap.String("field", f.Field),
			zap.Error(f.Err))
		if s.metrics != nil {
			s.metrics.ObserveRenderFailure(f)
		}
	})
	return e
}

// Replace compiles rs and, when every rule compiles, makes it the active set.
// On failure the previous set stays active and a *rules.CompileError is returned.
func (s *RuleSet) Replace(rs []types.Rule) error {
	if _, err := rules.CompileRules(rs, s.renderer, nil); err != nil {
		if s.metrics != nil {
			s.metrics.CompileFailed()
		}
		return err
	}

	engine := s.newEngine(rs)

	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetRulesLoaded(len(rs))
	}
	s.logger.Info("rule set loaded", zap.Int("rules", len(rs)))
	return nil
}

// Reload reads rules from src and replaces the active set.
func (s *RuleSet) Reload(ctx context.Context, src RuleSource) error {
	rs, err := src.Rules(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuleSource, err)
	}
	return s.Replace(rs)
}

// Evaluate runs the active rule set over records.
func (s *RuleSet) Evaluate(records []types.Record) ([]types.MatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.EvaluateAll(records)
}

// Insight renders the insight of ruleID for record.
func (s *RuleSet) Insight(ruleID string, record types.Record) (types.Insight, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.EvaluateOne(ruleID, record)
}

// Rules returns a copy of the active rules in evaluation order.
func (s *RuleSet) Rules() []types.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Rules()
}

// Len returns the number of active rules.
func (s *RuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Len()
}
