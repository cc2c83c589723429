package pathresolver

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/registry"
)

func TestGlobalPathRule(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	p, err := r.GlobalPath(model.AdapterClaudeCode, model.ArtifactRule)
	if err != nil {
		t.Fatal(err)
	}
	if p != "/home/u/.claude/CLAUDE.md" {
		t.Errorf("got %s", p)
	}
}

func TestGlobalPathSlashCommandAlwaysFails(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	if _, err := r.GlobalPath(model.AdapterClaudeCode, model.ArtifactSlashCommand); err == nil {
		t.Fatal("expected GlobalPath(SlashCommand) to fail per spec")
	}
}

func TestLocalPathJoinsRepoRoot(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	p, err := r.LocalPath(model.AdapterClaudeCode, model.ArtifactRule, "/tmp/repoA")
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join("/tmp/repoA", ".claude/CLAUDE.md") {
		t.Errorf("got %s", p)
	}
}

func TestSlashCommandPathRejectsUnsafeNames(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	for _, name := range []string{"../escape", "a/b", `a\b`, ""} {
		if _, err := r.SlashCommandPath(model.AdapterClaudeCode, name, true); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestLocalSlashCommandPathRejectsUnsafeNames(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	for _, name := range []string{"..", "x/y"} {
		if _, err := r.LocalSlashCommandPath(model.AdapterClaudeCode, name, "/tmp/repo"); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestSkillPathAppendsSanitizedNameAndFilename(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	p, err := r.SkillPath(model.AdapterClaudeCode, "My Skill!!")
	if err != nil {
		t.Fatal(err)
	}
	if p != "/home/u/.claude/skills/my-skill/SKILL.md" {
		t.Errorf("got %s", p)
	}
}

func TestSanitizeSkillNameTrimsOuterDashesPreservesInterior(t *testing.T) {
	t.Parallel()
	got := SanitizeSkillName("--Leading--Trailing--")
	if got != "leading--trailing" {
		t.Errorf("got %q, want %q", got, "leading--trailing")
	}
}

func TestSanitizeSkillNameEmptyBecomesUnnamed(t *testing.T) {
	t.Parallel()
	if got := SanitizeSkillName("!!!"); got != "unnamed-skill" {
		t.Errorf("got %q", got)
	}
}

func TestValidateTargetPathRequiresAbsolute(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	if err := r.ValidateTargetPath("relative/path"); err == nil {
		t.Fatal("expected relative path to fail")
	}
}

func TestValidateTargetPathRejectsEscapeViaDotDot(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	if err := r.ValidateTargetPath("/home/u/../other/file"); err == nil {
		t.Fatal("expected escape to fail")
	}
}

func TestValidateTargetPathAcceptsUnderHome(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	if err := r.ValidateTargetPath("/home/u/.claude/CLAUDE.md"); err != nil {
		t.Fatal(err)
	}
}

func TestValidateEntryPointRejectsTraversalAndDriveLetters(t *testing.T) {
	t.Parallel()
	for _, ep := range []string{"../escape.sh", "/abs/path.sh", `\win\path.sh`, `C:\win.sh`, ""} {
		if err := ValidateEntryPoint(ep); err == nil {
			t.Errorf("expected %q to be rejected", ep)
		}
	}
	if err := ValidateEntryPoint("scripts/run.sh"); err != nil {
		t.Errorf("expected relative entry point to be accepted: %v", err)
	}
}

// TestRegistryResolverConsistency is the tested invariant from spec §4.2/§8:
// Registry.validate_support(A, S, T) succeeds iff the corresponding
// resolver call succeeds, for every (adapter, scope, artifact) triple.
func TestRegistryResolverConsistency(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	for _, c := range registry.ConsistencyCases() {
		supportErr := registry.ValidateSupport(c.Adapter, c.Scope, c.Type)

		var pathErr error
		switch c.Scope {
		case model.ScopeGlobal:
			_, pathErr = r.GlobalPath(c.Adapter, c.Type)
		case model.ScopeLocal:
			_, pathErr = r.LocalPath(c.Adapter, c.Type, "/tmp/repo")
		}

		if (supportErr == nil) != (pathErr == nil) {
			t.Errorf("%s/%s/%s: support err=%v path err=%v (inconsistent)", c.Adapter, c.Scope, c.Type, supportErr, pathErr)
		}
	}
}

func TestSkillPathHomeEscapeIsImpossibleForWellFormedAdapters(t *testing.T) {
	t.Parallel()
	r := New("/home/u")
	p, err := r.SkillPath(model.AdapterCodex, "deploy")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p, r.Home()) {
		t.Errorf("skill path %q escaped home", p)
	}
}
