package marshal

import (
	"testing"
	"time"

	"github.com/mkern/rulesync/internal/model"
)

func sampleRule() *model.Rule {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.Rule{
		ID:              "11111111-1111-1111-1111-111111111111",
		Name:            "code-standards",
		Content:         "Use Rust for all backends.",
		Scope:           model.ScopeLocal,
		TargetPaths:     []string{"/home/u/repo"},
		EnabledAdapters: []model.AdapterId{model.AdapterClaudeCode, model.AdapterCursor},
		Enabled:         true,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

// TestRuleFrontmatterRoundTrip is the tested invariant from spec §8: for a
// rule with valid fields, parse(serialize(r)) is equal-field to r, modulo
// timestamps re-emitted in the canonical form.
func TestRuleFrontmatterRoundTrip(t *testing.T) {
	t.Parallel()
	r := sampleRule()

	rendered, err := RuleToMarkdown(r)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := MarkdownToRule(rendered)
	if err != nil {
		t.Fatal(err)
	}

	if parsed.ID != r.ID || parsed.Name != r.Name || parsed.Content != r.Content {
		t.Errorf("round trip mismatch: %+v vs %+v", parsed, r)
	}
	if parsed.Scope != r.Scope {
		t.Errorf("scope mismatch: %v vs %v", parsed.Scope, r.Scope)
	}
	if len(parsed.TargetPaths) != 1 || parsed.TargetPaths[0] != r.TargetPaths[0] {
		t.Errorf("target paths mismatch: %v", parsed.TargetPaths)
	}
	if len(parsed.EnabledAdapters) != 2 {
		t.Errorf("enabled adapters mismatch: %v", parsed.EnabledAdapters)
	}
	if parsed.Enabled != r.Enabled {
		t.Errorf("enabled mismatch")
	}
	if !parsed.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("createdAt mismatch: %v vs %v", parsed.CreatedAt, r.CreatedAt)
	}
}

func TestRuleToMarkdownIsDeterministic(t *testing.T) {
	t.Parallel()
	r := sampleRule()
	a, err := RuleToMarkdown(r)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RuleToMarkdown(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("rendering the same rule twice produced different bytes")
	}
}

func TestMarkdownToRuleAcceptsAllTimestampLayouts(t *testing.T) {
	t.Parallel()
	layouts := []string{
		"2026-01-02T03:04:05Z",
		"2026-01-02T03:04:05",
		"2026-01-02 03:04:05",
		"2026-01-02",
	}
	for _, ts := range layouts {
		content := "---\nid: x\nname: n\nscope: global\nenabled: true\ncreatedAt: " + ts + "\nupdatedAt: " + ts + "\n---\nbody\n"
		r, err := MarkdownToRule([]byte(content))
		if err != nil {
			t.Fatalf("layout %q: %v", ts, err)
		}
		if r.CreatedAt.IsZero() {
			t.Errorf("layout %q: expected non-zero createdAt", ts)
		}
	}
}
