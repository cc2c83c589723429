package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkern/rulesync/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move every catalog rule to on-disk markdown files",
	RunE:  runMigrate,
}

var (
	rollbackBackupPath string
	rollbackDBPath     string
)

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the catalog database from a migration backup",
	RunE:  runMigrateRollback,
}

var migrateVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Diff the on-disk rule files against the catalog",
	RunE:  runMigrateVerify,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
	migrateCmd.AddCommand(migrateVerifyCmd)

	migrateRollbackCmd.Flags().StringVar(&rollbackBackupPath, "backup", "", "path to the migration backup file (required)")
	migrateRollbackCmd.Flags().StringVar(&rollbackDBPath, "db", "", "path to restore the backup onto (default: configured db path)")
	migrateRollbackCmd.MarkFlagRequired("backup")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to wire rulesyncd: %w", err)
	}
	defer a.close()

	result, err := a.mig.Migrate(cmd.Context())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Printf("migrated %d rule(s), success=%v\n", result.RulesMigrated, result.Success)
	for _, e := range result.Errors {
		fmt.Printf("error: %s\n", e)
	}
	if !result.Success {
		return fmt.Errorf("migration completed with %d error(s)", len(result.Errors))
	}
	return nil
}

func runMigrateRollback(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to wire rulesyncd: %w", err)
	}
	defer a.close()

	dbPath := rollbackDBPath
	if dbPath == "" {
		dbPath = a.mig.DBPath
	}
	if err := a.mig.RollbackMigration(rollbackBackupPath, dbPath); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	fmt.Println("rollback complete")
	return nil
}

func runMigrateVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to wire rulesyncd: %w", err)
	}
	defer a.close()

	ctx := cmd.Context()
	roots, err := a.repoRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load repo roots: %w", err)
	}

	result, err := a.mig.VerifyMigration(ctx, roots)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	fmt.Printf("valid=%v db_rules=%d file_rules=%d missing=%d extra=%d mismatched=%d\n",
		result.IsValid, result.DBRuleCount, result.FileRuleCount, len(result.MissingRules), len(result.ExtraRules), len(result.MismatchedRules))
	return nil
}
