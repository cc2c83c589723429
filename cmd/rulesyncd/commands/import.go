package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkern/rulesync/internal/config"
	"github.com/mkern/rulesync/internal/importer"
)

var (
	importURL          string
	importClipboard    string
	importConflictMode string
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Scan one or more sources and import candidate rules into the catalog",
	Long: `Scan local files, a URL, or clipboard text for candidate rules and apply
them to the catalog under a conflict policy (skip, replace, or rename a
case-insensitive name collision). Always runs with --dry-run first if
you only want to see what would be imported — this command executes the
import immediately.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importURL, "url", "", "fetch a rule document from this URL")
	importCmd.Flags().StringVar(&importClipboard, "clipboard", "", "import this literal text as clipboard content")
	importCmd.Flags().StringVar(&importConflictMode, "conflict", string(importer.ConflictSkip), "name-collision policy: skip, replace, or rename")
}

func runImport(cmd *cobra.Command, args []string) error {
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
	var scan importer.ImportScanResult

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		fileScan, err := a.imp.ScanFile(data, path)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}
		scan.Candidates = append(scan.Candidates, fileScan.Candidates...)
		scan.Errors = append(scan.Errors, fileScan.Errors...)
	}

	if importURL != "" {
		urlScan, err := a.imp.ScanURL(ctx, importURL)
		if err != nil {
			return fmt.Errorf("scan %s: %w", importURL, err)
		}
		scan.Candidates = append(scan.Candidates, urlScan.Candidates...)
		scan.Errors = append(scan.Errors, urlScan.Errors...)
	}

	if importClipboard != "" {
		clipScan, err := a.imp.ScanClipboard(importClipboard)
		if err != nil {
			return fmt.Errorf("scan clipboard: %w", err)
		}
		scan.Candidates = append(scan.Candidates, clipScan.Candidates...)
		scan.Errors = append(scan.Errors, clipScan.Errors...)
	}

	scan.Candidates = importer.ApplyToolSuffixPolicy(scan.Candidates)

	roots, err := a.repoRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load repo roots: %w", err)
	}

	result, err := a.imp.ExecuteImport(ctx, scan.Candidates, importer.ConflictMode(importConflictMode), roots)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("imported %d, skipped %d, conflicts %d\n", len(result.Imported), len(result.Skipped), len(result.Conflicts))
	for _, s := range result.Skipped {
		fmt.Printf("  skipped %s: %s\n", s.Name, s.Reason)
	}
	for _, c := range result.Conflicts {
		fmt.Printf("  conflict with %s: %s\n", c.ExistingName, c.Reason)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}
