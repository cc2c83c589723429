package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mkern/rulesync/internal/config"
	"github.com/mkern/rulesync/internal/status"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current sync status of every tracked artifact",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "list every entry, not just the summary")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	entries, summary, err := a.proj.ComputeStatus(ctx, status.StatusFilter{}, roots)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	fmt.Printf("%d artifacts tracked: %d synced, %d out of date, %d missing, %d conflicted, %d unsupported, %d error\n",
		summary.Total, summary.Synced, summary.OutOfDate, summary.Missing, summary.Conflicted, summary.Unsupported, summary.Error)

	if !statusAll {
		return nil
	}
	for _, e := range entries {
		last := "never"
		if !e.LastOperationAt.IsZero() {
			last = humanize.RelTime(e.LastOperationAt, time.Now(), "ago", "from now")
		}
		fmt.Printf("  [%s] %s (%s/%s) %s — last %s %s\n", e.Status, e.ArtifactName, e.Adapter, e.Scope, e.ExpectedPath, e.LastOperation, last)
	}
	return nil
}
