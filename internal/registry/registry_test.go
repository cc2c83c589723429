package registry

import (
	"testing"

	"github.com/mkern/rulesync/internal/model"
)

func TestGetKnownAdapter(t *testing.T) {
	t.Parallel()
	e, ok := Get(model.AdapterClaudeCode)
	if !ok {
		t.Fatal("expected claude-code to be registered")
	}
	if e.Paths.GlobalPath != "~/.claude/CLAUDE.md" {
		t.Errorf("unexpected global path: %s", e.Paths.GlobalPath)
	}
}

func TestGetUnknownAdapter(t *testing.T) {
	t.Parallel()
	_, ok := Get(model.AdapterId("not-a-real-adapter"))
	if ok {
		t.Fatal("expected unknown adapter to be absent")
	}
}

func TestAllReturnsEveryClosedSetAdapter(t *testing.T) {
	t.Parallel()
	all := All()
	if len(all) != len(model.AllAdapters) {
		t.Fatalf("expected %d adapters, got %d", len(model.AllAdapters), len(all))
	}
}

func TestValidateSupportUnknownAdapter(t *testing.T) {
	t.Parallel()
	if err := ValidateSupport("bogus", model.ScopeGlobal, model.ArtifactRule); err == nil {
		t.Fatal("expected error for unknown adapter")
	}
}

func TestValidateSupportCursorSkillsUnsupported(t *testing.T) {
	t.Parallel()
	if err := ValidateSupport(model.AdapterCursor, model.ScopeGlobal, model.ArtifactSkill); err == nil {
		t.Fatal("expected cursor to not support skills")
	}
}

func TestValidateSupportWindsurfSlashCommandsUnsupported(t *testing.T) {
	t.Parallel()
	if err := ValidateSupport(model.AdapterWindsurf, model.ScopeGlobal, model.ArtifactSlashCommand); err == nil {
		t.Fatal("expected windsurf to not support slash commands")
	}
}

func TestValidateSupportClaudeCodeEverything(t *testing.T) {
	t.Parallel()
	for _, at := range []model.ArtifactType{model.ArtifactRule, model.ArtifactCommandStub, model.ArtifactSlashCommand, model.ArtifactSkill} {
		for _, s := range []model.Scope{model.ScopeGlobal, model.ScopeLocal} {
			if err := ValidateSupport(model.AdapterClaudeCode, s, at); err != nil {
				t.Errorf("claude-code should support %s/%s: %v", s, at, err)
			}
		}
	}
}

// consistencyCases enumerates every (adapter, scope, artifact) triple; used
// by the path resolver tests to assert the registry/resolver consistency
// invariant from spec §4.2 and §8.
func ConsistencyCases() []struct {
	Adapter model.AdapterId
	Scope   model.Scope
	Type    model.ArtifactType
} {
	var cases []struct {
		Adapter model.AdapterId
		Scope   model.Scope
		Type    model.ArtifactType
	}
	for _, a := range model.AllAdapters {
		for _, s := range []model.Scope{model.ScopeGlobal, model.ScopeLocal} {
			for _, t := range []model.ArtifactType{model.ArtifactRule, model.ArtifactCommandStub, model.ArtifactSkill} {
				cases = append(cases, struct {
					Adapter model.AdapterId
					Scope   model.Scope
					Type    model.ArtifactType
				}{a, s, t})
			}
		}
	}
	return cases
}
