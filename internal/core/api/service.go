// Package api provides the rules-engine service: the active rule set, the
// transport-neutral operations and their gRPC binding.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davidespo/rules-engine/internal/core/config"
	"github.com/davidespo/rules-engine/internal/core/metrics"
	"github.com/davidespo/rules-engine/internal/logging"
	"github.com/davidespo/rules-engine/internal/types"
)

// Service implements evaluation, insight and listing over a RuleSet.
// Thin orchestration layer shared by the gRPC and HTTP surfaces.
type Service struct {
	rules   *RuleSet
	cfg     *config.ServiceConfig
	metrics *metrics.EvaluationMetrics
	logger  *zap.Logger
}

// NewService creates service instance with dependencies. m and logger may be nil.
func NewService(rs *RuleSet, cfg *config.ServiceConfig, m *metrics.EvaluationMetrics, logger *zap.Logger) (*Service, error) {
	if rs == nil {
		return nil, errors.New("rule set cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("cfg cannot be nil")
	}
	logger = logging.OrNop(logger)
	return &Service{rules: rs, cfg: cfg, metrics: m, logger: logger}, nil
}

// RuleSet returns the active rule set, for reloads.
func (s *Service) RuleSet() *RuleSet { return s.rules }

// maxBatch is the effective per-request record limit.
func (s *Service) maxBatch() int {
	if s.cfg.MaxBatchSize <= 0 || s.cfg.MaxBatchSize > types.MaxBatchRecords {
		return types.MaxBatchRecords
	}
	return s.cfg.MaxBatchSize
}

// Evaluate returns the matching (record, rule) pairs for records.
// surface labels the metrics (metrics.SurfaceGRPC, metrics.SurfaceHTTP).
func (s *Service) Evaluate(ctx context.Context, surface string, records []types.Record) ([]types.MatchID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reject oversized batches before compiling anything
	if limit := s.maxBatch(); len(records) > limit {
		return nil, fmt.Errorf("%w: %d records (max %d)", ErrBatchTooLarge, len(records), limit)
	}

	start := time.Now()
	matches, err := s.rules.Evaluate(records)
	if err != nil {
		s.logger.Error("evaluation failed",
			zap.String("surface", surface),
			zap.Int("records", len(records)),
			zap.Error(err))
		return nil, err
	}
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.ObserveEvaluation(surface, elapsed, matches)
	}
	s.logger.Debug("evaluated records",
		zap.String("surface", surface),
		zap.Int("records", len(records)),
		zap.Int("matches", len(matches)),
		zap.Duration("elapsed", elapsed))
	return matches, nil
}

// Insight renders the insight of ruleID for record. found is false when the
// rule is not in the active set.
func (s *Service) Insight(ctx context.Context, ruleID string, record types.Record) (types.Insight, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Insight{}, false, err
	}
	if ruleID == "" {
		return types.Insight{}, false, fmt.Errorf("%w: %v", ErrInvalidRequest, types.ErrEmptyRuleID)
	}
	return s.rules.Insight(ruleID, record)
}

// ListRules returns the active rules in evaluation order.
func (s *Service) ListRules(ctx context.Context) ([]types.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.rules.Rules(), nil
}
