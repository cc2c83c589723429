package marshal

import (
	"testing"

	"github.com/mkern/rulesync/internal/model"
)

func TestSkillMetadataRoundTrip(t *testing.T) {
	t.Parallel()
	s := &model.Skill{
		ID:            "s1",
		Name:          "Deploy",
		Description:   "Deploys the service",
		EntryPoint:    "scripts/deploy.sh",
		InputSchema:   []model.CommandArgument{{Name: "env", ArgType: model.ArgString, Required: true}},
		Scope:         model.ScopeGlobal,
		Enabled:       true,
		DirectoryPath: "/home/u/.rulesync/skills/deploy",
	}

	data, err := MarshalSkillMetadata(s)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := UnmarshalSkillMetadata(data)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Name != s.Name || parsed.EntryPoint != s.EntryPoint {
		t.Errorf("round trip mismatch: %+v", parsed)
	}
	if len(parsed.InputSchema) != 1 || parsed.InputSchema[0].Name != "env" {
		t.Errorf("input schema mismatch: %+v", parsed.InputSchema)
	}
}
