package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidespo/rules-engine/internal/core/loader"
	"github.com/davidespo/rules-engine/internal/render"
	"github.com/davidespo/rules-engine/internal/rules"
	"github.com/davidespo/rules-engine/internal/types"
)

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Render the insight of one rule for one record",
	Long: `Render the title, description and solution of a rule against a record.
The rule's match document is not checked; pair it with a match reported by
"evaluate".`,
	Args: cobra.NoArgs,
	RunE: runInsight,
}

func init() {
	rootCmd.AddCommand(insightCmd)
	insightCmd.Flags().String("rules", "", "rules file (YAML or JSON)")
	insightCmd.Flags().String("rule", "", "rule id")
	insightCmd.Flags().String("record", "", "record file holding a single object (YAML or JSON)")
	_ = insightCmd.MarkFlagRequired("rules")
	_ = insightCmd.MarkFlagRequired("rule")
	_ = insightCmd.MarkFlagRequired("record")
}

func runInsight(cmd *cobra.Command, args []string) error {
	rulesPath, _ := cmd.Flags().GetString("rules")
	ruleID, _ := cmd.Flags().GetString("rule")
	recordPath, _ := cmd.Flags().GetString("record")

	rs, err := loader.LoadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	record, err := loader.LoadRecord(recordPath)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	engine := rules.NewEngine(render.NewTextRenderer(), rs...)
	engine.ObserveRenderFailures(logRenderFailure)

	insight, ok, err := engine.EvaluateOne(ruleID, record)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, ruleID)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(insight)
}
