package status

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
	"github.com/mkern/rulesync/internal/reconcile"
)

func strp(s string) *string { return &s }

func openTestEngine(t *testing.T) (*reconcile.Engine, context.Context) {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	home := t.TempDir()
	resolver := pathresolver.New(home)
	logger := log.New(os.Stderr, "", 0)
	return reconcile.New(store, resolver, logger), context.Background()
}

func openTestProjection(t *testing.T) (*Projection, *reconcile.Engine, context.Context) {
	t.Helper()
	engine, ctx := openTestEngine(t)
	return New(engine, 0), engine, ctx
}

func TestComputeStatus_MissingBeforeReconcile(t *testing.T) {
	proj, engine, ctx := openTestProjection(t)

	if _, err := engine.Store.CreateRule(ctx, catalog.RuleInput{
		Name:            strp("Security Review"),
		Content:         strp("Always check for injection."),
		EnabledAdapters: &[]model.AdapterId{model.AdapterClaudeCode},
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	entries, summary, err := proj.ComputeStatus(ctx, StatusFilter{}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if summary.Missing != 1 {
		t.Errorf("expected one missing entry before reconcile, got summary=%+v entries=%+v", summary, entries)
	}
}

func TestComputeStatus_SyncedAfterReconcile(t *testing.T) {
	proj, engine, ctx := openTestProjection(t)

	if _, err := engine.Store.CreateRule(ctx, catalog.RuleInput{
		Name:            strp("Security Review"),
		Content:         strp("Always check for injection."),
		EnabledAdapters: &[]model.AdapterId{model.AdapterClaudeCode},
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	if _, err := engine.Reconcile(ctx, nil, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	proj.InvalidateCache()

	_, summary, err := proj.ComputeStatus(ctx, StatusFilter{}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if summary.Synced != 1 || summary.Missing != 0 {
		t.Errorf("expected one synced entry, got %+v", summary)
	}
}

func TestComputeStatus_UnsupportedSkillAdapter(t *testing.T) {
	proj, engine, ctx := openTestProjection(t)

	if _, err := engine.Store.CreateSkill(ctx, catalog.SkillInput{
		Name:           strp("deploy"),
		DirectoryPath:  strp(engine.Resolver.Home() + "/skills/deploy"),
		EntryPoint:     strp("run.sh"),
		TargetAdapters: &[]model.AdapterId{model.AdapterCursor},
	}, engine.Resolver.Home()); err != nil {
		t.Fatalf("CreateSkill: %v", err)
	}

	entries, summary, err := proj.ComputeStatus(ctx, StatusFilter{}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if summary.Unsupported != 1 {
		t.Errorf("expected one unsupported entry for cursor skill targeting, got %+v entries=%+v", summary, entries)
	}
	for _, e := range entries {
		if e.ArtifactType == model.ArtifactSkill {
			if e.Status != model.StatusUnsupported {
				t.Errorf("expected skill entry status Unsupported, got %s", e.Status)
			}
		}
	}
}

func TestComputeStatus_FilterByStatus(t *testing.T) {
	proj, engine, ctx := openTestProjection(t)

	if _, err := engine.Store.CreateRule(ctx, catalog.RuleInput{
		Name:            strp("Rule A"),
		Content:         strp("content"),
		EnabledAdapters: &[]model.AdapterId{model.AdapterClaudeCode},
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	missing := model.StatusMissing
	entries, summary, err := proj.ComputeStatus(ctx, StatusFilter{Status: &missing}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if summary.Total != 1 || len(entries) != 1 {
		t.Errorf("expected filter to narrow to the single missing entry, got %+v", summary)
	}
}

func TestRepairArtifact_WritesMissingFile(t *testing.T) {
	proj, engine, ctx := openTestProjection(t)

	if _, err := engine.Store.CreateRule(ctx, catalog.RuleInput{
		Name:            strp("Security Review"),
		Content:         strp("Always check for injection."),
		EnabledAdapters: &[]model.AdapterId{model.AdapterClaudeCode},
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	entries, _, err := proj.ComputeStatus(ctx, StatusFilter{}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	repairResult, err := proj.RepairArtifact(ctx, entries[0].ID, nil, false)
	if err != nil {
		t.Fatalf("RepairArtifact: %v", err)
	}
	if repairResult.Result.Created != 1 {
		t.Errorf("expected repair to create the missing file, got %+v", repairResult.Result)
	}
	if repairResult.PostSummary.Synced != 1 {
		t.Errorf("expected post-repair status to be synced, got %+v", repairResult.PostSummary)
	}
}

func TestRepairAllArtifacts_PrunesConflicted(t *testing.T) {
	proj, engine, ctx := openTestProjection(t)
	home := engine.Resolver.Home()

	orphan := home + "/.claude/CLAUDE.md"
	if err := os.MkdirAll(home+"/.claude", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(orphan, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	repairResult, err := proj.RepairAllArtifacts(ctx, StatusFilter{}, nil, false)
	if err != nil {
		t.Fatalf("RepairAllArtifacts: %v", err)
	}
	if repairResult.Result.Removed != 1 {
		t.Errorf("expected orphan file to be removed, got %+v", repairResult.Result)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("expected orphan file to be gone")
	}
}

func TestProjection_CacheInvalidation(t *testing.T) {
	engine, ctx := openTestEngine(t)
	pCached := New(engine, time.Minute)

	if _, err := engine.Store.CreateRule(ctx, catalog.RuleInput{
		Name:            strp("Rule"),
		Content:         strp("content"),
		EnabledAdapters: &[]model.AdapterId{model.AdapterClaudeCode},
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	_, summary1, err := pCached.ComputeStatus(ctx, StatusFilter{}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if summary1.Missing != 1 {
		t.Fatalf("expected missing before reconcile, got %+v", summary1)
	}

	if _, err := engine.Reconcile(ctx, nil, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	_, summary2, err := pCached.ComputeStatus(ctx, StatusFilter{}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if summary2.Missing != 1 {
		t.Errorf("expected cached actual-state scan to still report missing, got %+v", summary2)
	}

	pCached.InvalidateCache()
	_, summary3, err := pCached.ComputeStatus(ctx, StatusFilter{}, nil)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if summary3.Synced != 1 {
		t.Errorf("expected invalidated cache to pick up the reconciled file, got %+v", summary3)
	}
}
