package importer

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
	"github.com/mkern/rulesync/internal/reconcile"
)

func strp(s string) *string { return &s }

func openTestImporter(t *testing.T, withEngine bool) (*Importer, context.Context) {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	home := t.TempDir()
	resolver := pathresolver.New(home)
	logger := log.New(os.Stderr, "", 0)

	var engine *reconcile.Engine
	if withEngine {
		engine = reconcile.New(store, resolver, logger)
	}
	return New(store, resolver, engine, 10*1024*1024, logger), context.Background()
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"My Rule!!":     "My-Rule",
		"  spaced  out": "spaced-out",
		"####":          "imported-rule",
		"valid_name-1":  "valid_name-1",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInferName_GenericStemReplaced(t *testing.T) {
	if got := inferName("", "AGENTS", "claude-code"); got != "claude-code-import" {
		t.Errorf("expected generic stem replaced with tool-import, got %q", got)
	}
	if got := inferName("", "my-custom-rules", "claude-code"); got != "my-custom-rules" {
		t.Errorf("expected non-generic stem preserved, got %q", got)
	}
	if got := inferName("Explicit Name", "agents", "cline"); got != "Explicit-Name" {
		t.Errorf("expected payload name to win over stem, got %q", got)
	}
}

func TestExtractCandidate_JSONPayload(t *testing.T) {
	raw := []byte(`{"name":"Security Rule","content":"Always validate input.","scope":"global"}`)
	c := extractCandidate(raw, "whatever", SourceFile, "", "whatever.json")
	if c.ProposedName != "Security-Rule" || c.Content != "Always validate input." {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestExtractCandidate_YAMLPayload(t *testing.T) {
	raw := []byte("name: Style Guide\ncontent: Use tabs.\n")
	c := extractCandidate(raw, "whatever", SourceFile, "", "whatever.yaml")
	if c.ProposedName != "Style-Guide" || c.Content != "Use tabs." {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestExtractCandidate_RawTextFallback(t *testing.T) {
	raw := []byte("Just some freeform rule text, not JSON or YAML at all.")
	c := extractCandidate(raw, "my-notes", SourceFile, "", "my-notes.txt")
	if c.ProposedName != "my-notes" || c.Content != string(raw) {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestApplyToolSuffixPolicy(t *testing.T) {
	candidates := []ImportCandidate{
		{ProposedName: "agents-import", SourceTool: "claude-code"},
		{ProposedName: "agents-import", SourceTool: "cursor"},
		{ProposedName: "unique-rule", SourceTool: "cline"},
	}
	out := ApplyToolSuffixPolicy(candidates)
	if out[0].ProposedName != "agents-import-claude-code" {
		t.Errorf("expected first candidate suffixed, got %q", out[0].ProposedName)
	}
	if out[1].ProposedName != "agents-import-cursor" {
		t.Errorf("expected second candidate suffixed, got %q", out[1].ProposedName)
	}
	if out[2].ProposedName != "unique-rule" {
		t.Errorf("expected unambiguous name left alone, got %q", out[2].ProposedName)
	}
}

func TestExecuteImport_CreatesNewRule(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	result, err := im.ExecuteImport(ctx, []ImportCandidate{
		{ProposedName: "New Rule", Content: "Do the thing.", Scope: model.ScopeGlobal, SourceType: SourceClipboard, SourcePath: "clipboard"},
	}, ConflictSkip, nil)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if len(result.Imported) != 1 {
		t.Fatalf("expected one imported rule, got %+v", result)
	}

	rules, err := im.Store.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "New-Rule" {
		t.Errorf("unexpected catalog state: %+v", rules)
	}
}

func TestExecuteImport_SkipsEmptyContent(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	result, err := im.ExecuteImport(ctx, []ImportCandidate{
		{ProposedName: "Empty", Content: "   ", SourceType: SourceClipboard, SourcePath: "clipboard"},
	}, ConflictSkip, nil)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Reason != "empty content" {
		t.Errorf("expected empty-content skip, got %+v", result)
	}
}

func TestExecuteImport_SkipsDuplicateContent(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	if _, err := im.Store.CreateRule(ctx, catalog.RuleInput{
		Name: strp("Existing"), Content: strp("shared content"),
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	result, err := im.ExecuteImport(ctx, []ImportCandidate{
		{ProposedName: "Incoming", Content: "shared content", SourceType: SourceClipboard, SourcePath: "clipboard"},
	}, ConflictSkip, nil)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected duplicate-content skip, got %+v", result)
	}
	want := "Duplicate content already exists as 'Existing'"
	if result.Skipped[0].Reason != want {
		t.Errorf("Reason = %q, want %q", result.Skipped[0].Reason, want)
	}
}

func TestExecuteImport_SourceIdentityUpdatesInPlace(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	candidate := ImportCandidate{ProposedName: "Tracked", Content: "v1", SourceType: SourceFile, SourcePath: "/tmp/tracked.md"}

	r1, err := im.ExecuteImport(ctx, []ImportCandidate{candidate}, ConflictSkip, nil)
	if err != nil || len(r1.Imported) != 1 {
		t.Fatalf("first import: %v %+v", err, r1)
	}
	firstID := r1.Imported[0]

	candidate.Content = "v2"
	r2, err := im.ExecuteImport(ctx, []ImportCandidate{candidate}, ConflictSkip, nil)
	if err != nil || len(r2.Imported) != 1 {
		t.Fatalf("second import: %v %+v", err, r2)
	}
	if r2.Imported[0] != firstID {
		t.Errorf("expected re-import to update the same rule id, got %s vs %s", r2.Imported[0], firstID)
	}

	rules, _ := im.Store.ListRules(ctx)
	if len(rules) != 1 || rules[0].Content != "v2" {
		t.Errorf("expected in-place content update, got %+v", rules)
	}
}

func TestExecuteImport_NameCollisionSkip(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	if _, err := im.Store.CreateRule(ctx, catalog.RuleInput{
		Name: strp("Shared Name"), Content: strp("original"),
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	result, err := im.ExecuteImport(ctx, []ImportCandidate{
		{ProposedName: "shared name", Content: "different", SourceType: SourceClipboard, SourcePath: "clipboard"},
	}, ConflictSkip, nil)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", result)
	}
}

func TestExecuteImport_NameCollisionRename(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	if _, err := im.Store.CreateRule(ctx, catalog.RuleInput{
		Name: strp("Shared Name"), Content: strp("original"),
	}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	result, err := im.ExecuteImport(ctx, []ImportCandidate{
		{ProposedName: "Shared Name", Content: "different", SourceType: SourceClipboard, SourcePath: "clipboard"},
	}, ConflictRename, nil)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if len(result.Imported) != 1 {
		t.Fatalf("expected rename to create a new rule, got %+v", result)
	}

	rules, _ := im.Store.ListRules(ctx)
	if len(rules) != 2 {
		t.Fatalf("expected two rules after rename, got %+v", rules)
	}
}

func TestExecuteImport_NameCollisionReplace(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	existing, err := im.Store.CreateRule(ctx, catalog.RuleInput{
		Name: strp("Shared Name"), Content: strp("original"),
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	result, err := im.ExecuteImport(ctx, []ImportCandidate{
		{ProposedName: "Shared Name", Content: "different", SourceType: SourceClipboard, SourcePath: "clipboard"},
	}, ConflictReplace, nil)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if len(result.Imported) != 1 || result.Imported[0] != existing.ID {
		t.Fatalf("expected replace to update existing rule id, got %+v", result)
	}

	rules, _ := im.Store.ListRules(ctx)
	if len(rules) != 1 || rules[0].Content != "different" {
		t.Errorf("expected content replaced in place, got %+v", rules)
	}
}

func TestExecuteImport_HistoryCapped(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	for i := 0; i < maxHistoryEntries+5; i++ {
		if _, err := im.ExecuteImport(ctx, nil, ConflictSkip, nil); err != nil {
			t.Fatalf("ExecuteImport iteration %d: %v", i, err)
		}
	}
	history, err := im.ImportHistory(ctx)
	if err != nil {
		t.Fatalf("ImportHistory: %v", err)
	}
	if len(history) != maxHistoryEntries {
		t.Errorf("expected history capped at %d entries, got %d", maxHistoryEntries, len(history))
	}
}

func TestExecuteImport_TriggersReconcile(t *testing.T) {
	im, ctx := openTestImporter(t, true)
	result, err := im.ExecuteImport(ctx, []ImportCandidate{
		{ProposedName: "Synced Rule", Content: "content", EnabledAdapters: []model.AdapterId{model.AdapterClaudeCode}, SourceType: SourceClipboard, SourcePath: "clipboard"},
	}, ConflictSkip, nil)
	if err != nil {
		t.Fatalf("ExecuteImport: %v", err)
	}
	if len(result.Imported) != 1 {
		t.Fatalf("expected import to succeed, got %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected reconcile pass to succeed with no errors, got %v", result.Errors)
	}
}

func TestScanURL_RejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 200))
	}))
	defer srv.Close()

	im, ctx := openTestImporter(t, false)
	im.MaxUploadBytes = 50

	result, err := im.ScanURL(ctx, srv.URL)
	if err != nil {
		t.Fatalf("ScanURL: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected oversized body to be reported as an error, got %+v", result)
	}
}

func TestScanURL_ExtractsCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Remote Rule","content":"fetched content"}`))
	}))
	defer srv.Close()

	im, ctx := openTestImporter(t, false)
	result, err := im.ScanURL(ctx, srv.URL)
	if err != nil {
		t.Fatalf("ScanURL: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Content != "fetched content" {
		t.Errorf("unexpected scan result: %+v", result)
	}
}

func TestScanDirectory_AggregatesEntries(t *testing.T) {
	im, ctx := openTestImporter(t, false)
	_ = ctx
	result := im.ScanDirectory([]FileEntry{
		{Path: "/tmp/a.md", Data: []byte("rule a content")},
		{Path: "/tmp/b.md", Data: []byte("rule b content")},
	})
	if len(result.Candidates) != 2 {
		t.Errorf("expected two candidates, got %+v", result)
	}
}
