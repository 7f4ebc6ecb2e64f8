package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidespo/rules-engine/internal/core/loader"
	"github.com/davidespo/rules-engine/internal/render"
	"github.com/davidespo/rules-engine/internal/rules"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a record file against a rule file",
	Long: `Evaluate prints one JSON line per (record, rule) match, records in file
order and rules in file order within each record. With --insights each line
is the rendered insight instead of the bare ids.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("rules", "", "rule file (.yaml, .yml or .json)")
	evaluateCmd.Flags().String("records", "", "record file (.yaml, .yml or .json)")
	evaluateCmd.Flags().Bool("insights", false, "print rendered insights instead of match ids")
	_ = evaluateCmd.MarkFlagRequired("rules")
	_ = evaluateCmd.MarkFlagRequired("records")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	rulesPath, _ := cmd.Flags().GetString("rules")
	recordsPath, _ := cmd.Flags().GetString("records")
	withInsights, _ := cmd.Flags().GetBool("insights")

	rs, err := loader.LoadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	records, err := loader.LoadRecords(recordsPath)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	compiled, err := rules.CompileRules(rs, render.NewTextRenderer(), logRenderFailure)
	if err != nil {
		return err
	}
	logger.Info("evaluating records",
		zap.Int("rules", len(rs)),
		zap.Int("records", len(records)))

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !withInsights {
		for _, m := range rules.EvaluateRecords(compiled, records) {
			if err := enc.Encode(m); err != nil {
				return err
			}
		}
		return nil
	}

	// Same order as EvaluateRecords, keeping each match paired with its own record
	for _, rec := range records {
		for _, c := range compiled {
			if !c.Matches(rec) {
				continue
			}
			if err := enc.Encode(c.Insight(rec)); err != nil {
				return err
			}
		}
	}
	return nil
}

// logRenderFailure reports template failures; the insight still carries
// the diagnostic text.
func logRenderFailure(f rules.RenderFailure) {
	logger.Warn("insight field render failed",
		zap.String("rule_id", f.RuleID),
		zap.String("field", f.Field),
		zap.Error(f.Err))
}
