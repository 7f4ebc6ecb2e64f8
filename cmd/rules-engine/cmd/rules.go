package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidespo/rules-engine/internal/core/db"
	"github.com/davidespo/rules-engine/internal/core/loader"
)

// schemaMigration is the migration that creates the rules table.
const schemaMigration = "001_initial_schema.sql"

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage rules stored in the database",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import rules from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesImport,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove one rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesRemove,
}

var rulesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored rule",
	Args:  cobra.NoArgs,
	RunE:  runRulesClear,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesImportCmd, rulesListCmd, rulesRemoveCmd, rulesClearCmd)
	rulesImportCmd.Flags().Bool("replace", false, "remove existing rules before importing")
}

// openRepository opens the database and refuses to continue on an
// unmigrated schema.
func openRepository() (*sqlx.DB, *db.RuleRepository, error) {
	database, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}
	if err := requireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	repo, err := db.NewRuleRepository(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, repo, nil
}

func requireMigrated(database *sqlx.DB) error {
	var migrationID string
	err := database.Get(&migrationID,
		database.Rebind(`SELECT migration_id FROM migrations WHERE migration_id = ?`), schemaMigration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("migration %s not applied - run 'rules-engine migrate up' first", schemaMigration)
		}
		return fmt.Errorf("failed to check migrations (run 'rules-engine migrate up' first): %w", err)
	}
	return nil
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	replace, _ := cmd.Flags().GetBool("replace")

	rs, err := loader.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	database, repo, err := openRepository()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()

	if replace {
		n, err := repo.Clear(ctx)
		if err != nil {
			return err
		}
		logger.Info("cleared rules", zap.Int64("removed", n))
	}

	ids, err := repo.SaveAll(ctx, rs)
	if err != nil {
		return fmt.Errorf("imported %d of %d rules: %w", len(ids), len(rs), err)
	}
	logger.Info("imported rules", zap.String("file", args[0]), zap.Int("rules", len(ids)))
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	database, repo, err := openRepository()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	stored, err := repo.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POSITION\tID\tSEVERITY\tTAGS\tTITLE")
	for _, r := range stored {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.Position, r.ID, r.Severity, strings.Join(r.Tags, ","), r.TitleTemplate)
	}
	return tw.Flush()
}

func runRulesRemove(cmd *cobra.Command, args []string) error {
	database, repo, err := openRepository()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	if err := repo.Delete(ctx, args[0]); err != nil {
		return err
	}
	logger.Info("removed rule", zap.String("rule_id", args[0]))
	return nil
}

func runRulesClear(cmd *cobra.Command, args []string) error {
	database, repo, err := openRepository()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	n, err := repo.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d rule(s) removed\n", n)
	return nil
}
