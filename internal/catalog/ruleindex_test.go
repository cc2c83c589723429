package catalog

import (
	"context"
	"testing"
)

func TestStore_RuleFileIndex_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetRuleFileIndex(ctx, "rule-1", "/home/user/.claude/rules/security.md"); err != nil {
		t.Fatalf("SetRuleFileIndex: %v", err)
	}

	path, err := store.GetRuleFileIndex(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetRuleFileIndex: %v", err)
	}
	if path != "/home/user/.claude/rules/security.md" {
		t.Errorf("expected path to round-trip, got %q", path)
	}

	// Overwrite on rename.
	if err := store.SetRuleFileIndex(ctx, "rule-1", "/home/user/.claude/rules/renamed.md"); err != nil {
		t.Fatalf("SetRuleFileIndex overwrite: %v", err)
	}
	path, err = store.GetRuleFileIndex(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetRuleFileIndex: %v", err)
	}
	if path != "/home/user/.claude/rules/renamed.md" {
		t.Errorf("expected renamed path, got %q", path)
	}
}

func TestStore_GetRuleFileIndex_UnsetReturnsEmpty(t *testing.T) {
	store := openTestStore(t)
	path, err := store.GetRuleFileIndex(context.Background(), "no-such-rule")
	if err != nil {
		t.Fatalf("GetRuleFileIndex: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestStore_AllRuleFileIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetRuleFileIndex(ctx, "rule-1", "/a.md"); err != nil {
		t.Fatalf("SetRuleFileIndex: %v", err)
	}
	if err := store.SetRuleFileIndex(ctx, "rule-2", "/b.md"); err != nil {
		t.Fatalf("SetRuleFileIndex: %v", err)
	}

	all, err := store.AllRuleFileIndex(ctx)
	if err != nil {
		t.Fatalf("AllRuleFileIndex: %v", err)
	}
	if len(all) != 2 || all["rule-1"] != "/a.md" || all["rule-2"] != "/b.md" {
		t.Fatalf("unexpected index contents: %+v", all)
	}
}

func TestStore_DeleteRuleFileIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetRuleFileIndex(ctx, "rule-1", "/a.md"); err != nil {
		t.Fatalf("SetRuleFileIndex: %v", err)
	}
	if err := store.DeleteRuleFileIndex(ctx, "rule-1"); err != nil {
		t.Fatalf("DeleteRuleFileIndex: %v", err)
	}
	path, err := store.GetRuleFileIndex(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetRuleFileIndex: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path after delete, got %q", path)
	}
}

func TestStore_DeleteRule_CleansRuleFileIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	r, err := store.CreateRule(ctx, RuleInput{
		Name:    strp("Indexed rule"),
		Enabled: boolp(false),
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := store.SetRuleFileIndex(ctx, r.ID, "/home/user/.claude/rules/indexed-rule.md"); err != nil {
		t.Fatalf("SetRuleFileIndex: %v", err)
	}
	if err := store.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	path, err := store.GetRuleFileIndex(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRuleFileIndex: %v", err)
	}
	if path != "" {
		t.Errorf("expected rule_file_index entry to be cleaned up on delete, got %q", path)
	}
}
