package reconcile

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
)

func strp(s string) *string { return &s }

func openTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	home := t.TempDir()
	resolver := pathresolver.New(home)
	logger := log.New(os.Stderr, "", 0)
	return New(store, resolver, logger), home
}

func TestBuildPlan_ClassifiesEveryCase(t *testing.T) {
	desired := []ExpectedArtifact{
		{Path: "/a/new", ContentHash: "h1"},
		{Path: "/a/changed", ContentHash: "h2"},
		{Path: "/a/same", ContentHash: "h3"},
	}
	actual := []FoundArtifact{
		{Path: "/a/changed", ContentHash: "old"},
		{Path: "/a/same", ContentHash: "h3"},
		{Path: "/a/stale", ContentHash: "h4"},
	}

	plan := BuildPlan(desired, actual)

	if len(plan.ToCreate) != 1 || plan.ToCreate[0].Path != "/a/new" {
		t.Errorf("expected exactly /a/new to be created, got %+v", plan.ToCreate)
	}
	if len(plan.ToUpdate) != 1 || plan.ToUpdate[0].Path != "/a/changed" {
		t.Errorf("expected exactly /a/changed to be updated, got %+v", plan.ToUpdate)
	}
	if len(plan.Unchanged) != 1 || plan.Unchanged[0].Path != "/a/same" {
		t.Errorf("expected exactly /a/same to be unchanged, got %+v", plan.Unchanged)
	}
	if len(plan.ToRemove) != 1 || plan.ToRemove[0].Path != "/a/stale" {
		t.Errorf("expected exactly /a/stale to be removed, got %+v", plan.ToRemove)
	}
}

func TestExecute_WritesCreatesAtomically(t *testing.T) {
	eng, home := openTestEngine(t)
	ctx := context.Background()
	target := filepath.Join(home, "nested", "dir", "rule.md")

	plan := Plan{ToCreate: []PlanItem{{
		Path: target, Op: model.OpCreate,
		Expected: &ExpectedArtifact{Path: target, Content: []byte("hello"), ContentHash: hashContent([]byte("hello"))},
	}}}

	result, err := eng.Execute(ctx, plan, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Created != 1 {
		t.Errorf("expected a single successful create, got %+v", result)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected file contents %q, got %q", "hello", data)
	}

	entries, err := eng.Store.ListReconciliationLogs(ctx, 10)
	if err != nil {
		t.Fatalf("ListReconciliationLogs: %v", err)
	}
	if len(entries) != 1 || entries[0].Result != model.ResultSuccess {
		t.Errorf("expected one successful reconciliation log entry, got %+v", entries)
	}
}

func TestExecute_DryRunWritesNothing(t *testing.T) {
	eng, home := openTestEngine(t)
	ctx := context.Background()
	target := filepath.Join(home, "rule.md")

	plan := Plan{ToCreate: []PlanItem{{
		Path: target, Op: model.OpCreate,
		Expected: &ExpectedArtifact{Path: target, Content: []byte("hello"), ContentHash: hashContent([]byte("hello"))},
	}}}

	result, err := eng.Execute(ctx, plan, true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("expected dry run to still count the create, got %+v", result)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("expected dry run to leave no file on disk, err=%v", err)
	}
}

func TestExecute_RemovesStaleFile(t *testing.T) {
	eng, home := openTestEngine(t)
	ctx := context.Background()
	target := filepath.Join(home, "stale.md")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	plan := Plan{ToRemove: []PlanItem{{
		Path: target, Op: model.OpRemove,
		Found: &FoundArtifact{Path: target, ContentHash: "x"},
	}}}

	result, err := eng.Execute(ctx, plan, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Removed != 1 {
		t.Errorf("expected one removal, got %+v", result)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("expected file to be gone, err=%v", err)
	}
}

func TestReconcile_IsIdempotent(t *testing.T) {
	eng, _ := openTestEngine(t)
	ctx := context.Background()

	if _, err := eng.Store.CreateRule(ctx, catalog.RuleInput{
		Name:            strp("Security Review"),
		Content:         strp("Always check for injection."),
		EnabledAdapters: &[]model.AdapterId{model.AdapterClaudeCode},
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	first, err := eng.Reconcile(ctx, nil, false)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if first.Created == 0 {
		t.Fatalf("expected the first reconcile to create at least one artifact, got %+v", first)
	}

	second, err := eng.Reconcile(ctx, nil, false)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if second.Created != 0 || second.Updated != 0 || second.Removed != 0 {
		t.Errorf("expected the second reconcile to be a no-op, got %+v", second)
	}
	if second.Unchanged == 0 {
		t.Errorf("expected the second reconcile to report unchanged artifacts, got %+v", second)
	}
}
