package reconcile

import (
	"context"
	"log"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
)

// Engine ties the catalog and path resolver together into the three-phase
// reconcile pipeline. It holds no state of its own beyond what the Store
// and Resolver already carry.
type Engine struct {
	Store    *catalog.Store
	Resolver *pathresolver.Resolver
	logger   *log.Logger
}

// New builds an Engine. logger may be nil, in which case log.Default() is
// used — matching the teacher's unconditional use of the package-level
// logger in internal/sync.Worker.
func New(store *catalog.Store, resolver *pathresolver.Resolver, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{Store: store, Resolver: resolver, logger: logger}
}

// Reconcile runs the full desired → actual → plan → execute pipeline for
// the given repo roots. dryRun suppresses all filesystem writes but still
// counts as if they succeeded (spec §4.6.4).
func (e *Engine) Reconcile(ctx context.Context, repoRoots []string, dryRun bool) (Result, error) {
	desired, err := e.ComputeDesired(ctx, repoRoots)
	if err != nil {
		return Result{}, err
	}
	actual, err := e.ComputeActual(ctx, repoRoots)
	if err != nil {
		return Result{}, err
	}
	plan := BuildPlan(desired, actual)
	return e.Execute(ctx, plan, dryRun)
}

// Repair runs reconcile restricted to the to_remove set, pruning stale
// artifacts after catalog deletes without rewriting unchanged files
// (spec §4.6.5).
func (e *Engine) Repair(ctx context.Context, repoRoots []string, dryRun bool) (Result, error) {
	desired, err := e.ComputeDesired(ctx, repoRoots)
	if err != nil {
		return Result{}, err
	}
	actual, err := e.ComputeActual(ctx, repoRoots)
	if err != nil {
		return Result{}, err
	}
	plan := BuildPlan(desired, actual)
	plan.ToCreate = nil
	plan.ToUpdate = nil
	plan.Unchanged = nil
	return e.Execute(ctx, plan, dryRun)
}

func artifactLogPrefix(op model.ReconcileOp) string {
	return "[reconcile:" + string(op) + "]"
}
