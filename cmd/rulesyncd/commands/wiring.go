package commands

import (
	"context"
	"log"
	"os"

	"github.com/spf13/viper"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/config"
	"github.com/mkern/rulesync/internal/importer"
	"github.com/mkern/rulesync/internal/migrate"
	"github.com/mkern/rulesync/internal/pathresolver"
	"github.com/mkern/rulesync/internal/reconcile"
	"github.com/mkern/rulesync/internal/runner"
	"github.com/mkern/rulesync/internal/rserr"
	"github.com/mkern/rulesync/internal/status"
)

// localRulePathsKey mirrors internal/migrate's reserved settings key
// (spec §3) so the CLI can resolve the same repo roots the catalog knows
// about without importing migrate's unexported constant.
const localRulePathsKey = "local_rule_paths"

// app bundles every subsystem the CLI wires together, so each subcommand
// only has to call newApp and pick what it needs.
type app struct {
	cfg      *config.Config
	store    *catalog.Store
	resolver *pathresolver.Resolver
	engine   *reconcile.Engine
	proj     *status.Projection
	imp      *importer.Importer
	mig      *migrate.Migrator
	guard    *runner.Guard
	logger   *log.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, rserr.Wrapf(rserr.KindPath, err, "determine home directory: %v", err)
	}

	dbPath := cfg.DBPath
	if override := viper.GetString("db_path"); override != "" {
		dbPath = override
	}
	if dbPath == "" {
		dbPath = config.DefaultDBPath(home)
	}

	store, err := catalog.Open(dbPath)
	if err != nil {
		return nil, err
	}

	resolver := pathresolver.New(home)
	engine := reconcile.New(store, resolver, logger)
	proj := status.New(engine, cfg.Cache.TTL)
	imp := importer.New(store, resolver, engine, cfg.Import.MaxUploadBytes, logger)
	mig := migrate.New(store, resolver, dbPath, logger)
	guard := runner.New(store, newShellProcess(), logger)

	return &app{
		cfg: cfg, store: store, resolver: resolver, engine: engine,
		proj: proj, imp: imp, mig: mig, guard: guard, logger: logger,
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

// repoRoots reads the catalog's union of known local rule roots (spec §3's
// local_rule_paths setting), the same set the desktop shell would hand in
// via an RPC request's repoRoots field.
func (a *app) repoRoots(ctx context.Context) ([]string, error) {
	return a.store.GetSettingStringArray(ctx, localRulePathsKey)
}
