package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mkern/rulesync/internal/config"
	"github.com/mkern/rulesync/internal/rpcserver"
)

// runServe is the root command's default action: load config, wire every
// subsystem, and serve the RPC boundary until a signal asks it to stop —
// generalizing the teacher's mount/unmount signal lifecycle
// (internal/cmd/mount.go) to an HTTP listener (internal/rpcserver.Server).
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port := viper.GetInt("rpc.port"); port != 0 {
		cfg.RPC.Port = port
	}

	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to wire rulesyncd: %w", err)
	}
	defer a.close()

	server := rpcserver.New(a.store, a.engine, a.proj, a.imp, a.mig, a.guard, a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx, cfg.RPC.Port); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
