package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkern/rulesync/internal/config"
	"github.com/mkern/rulesync/internal/statusfs"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount a read-only status-browser filesystem",
	Long: `Mount a read-only view of the reconciliation status projection at the
given mountpoint: <adapter>/<scope>/<artifact-type>/<name>, one file per
tracked artifact containing its sync status. This mount never writes back
to the catalog — it is a read surface only.`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mountpoint: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to wire rulesyncd: %w", err)
	}
	defer a.close()

	roots, err := a.repoRoots(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load repo roots: %w", err)
	}

	root := statusfs.New(a.proj, roots)
	server, err := root.Mount(mountpoint)
	if err != nil {
		return fmt.Errorf("failed to mount: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nUnmounting...")
		server.Unmount()
	}()

	fmt.Printf("Status filesystem mounted at %s. Press Ctrl+C to unmount.\n", mountpoint)
	server.Wait()
	return nil
}
