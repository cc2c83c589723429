package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkern/rulesync/internal/config"
)

var reconcileDryRun bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the desired/actual diff and apply the resulting plan once",
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "compute the plan without writing any files")
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	result, err := a.engine.Reconcile(ctx, roots, reconcileDryRun)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	mode := "applied"
	if reconcileDryRun {
		mode = "planned"
	}
	fmt.Printf("%s: created=%d updated=%d removed=%d unchanged=%d\n", mode, result.Created, result.Updated, result.Removed, result.Unchanged)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("error: %s\n", e)
	}
	if !result.Success {
		return fmt.Errorf("reconcile completed with %d error(s)", len(result.Errors))
	}
	return nil
}
