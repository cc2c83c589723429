package format

import (
	"bytes"
	"testing"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/registry"
)

func TestRuleFile_Deterministic(t *testing.T) {
	rules := []model.Rule{
		{Name: "a", Content: "Body A"},
		{Name: "b", Content: "Body B"},
	}
	first := RuleFile(rules)
	second := RuleFile(rules)
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical input to render identical bytes")
	}
	if !bytes.Contains(first, []byte("Body A")) || !bytes.Contains(first, []byte("Body B")) {
		t.Fatalf("expected both rule bodies present, got %s", first)
	}
}

func TestRuleFile_PreservesOrder(t *testing.T) {
	rules := []model.Rule{{Content: "first"}, {Content: "second"}}
	out := string(RuleFile(rules))
	firstIdx := bytesIndex(out, "first")
	secondIdx := bytesIndex(out, "second")
	if firstIdx < 0 || secondIdx < 0 || firstIdx > secondIdx {
		t.Fatalf("expected catalog order preserved, got %q", out)
	}
}

func bytesIndex(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestCommandStub_Deterministic(t *testing.T) {
	commands := []model.Command{
		{Name: "deploy", Description: "Deploy the app", Script: "./deploy.sh", ExposeViaRPC: true,
			Arguments: []model.CommandArgument{{Name: "env", ArgType: model.ArgString, Required: true}}},
		{Name: "build", Description: "Build the app", Script: "./build.sh", ExposeViaRPC: false},
	}
	first, err := CommandStub(commands)
	if err != nil {
		t.Fatalf("CommandStub: %v", err)
	}
	second, err := CommandStub(commands)
	if err != nil {
		t.Fatalf("CommandStub: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical input to render identical bytes")
	}
	if bytes.Contains(first, []byte("build")) {
		t.Error("expected a command without ExposeViaRPC to be excluded from the stub")
	}
	if !bytes.Contains(first, []byte("deploy")) {
		t.Error("expected the exposed command to appear in the stub")
	}
}

func TestSlashCommand_MarkdownAdapter(t *testing.T) {
	entry, ok := registry.Get(model.AdapterClaudeCode)
	if !ok {
		t.Fatal("expected claude-code in the registry")
	}
	cmd := model.Command{Description: "Run tests", Script: "go test {{ARGS}}"}
	out, err := SlashCommand(entry, cmd)
	if err != nil {
		t.Fatalf("SlashCommand: %v", err)
	}
	if !bytes.Contains(out, []byte("$ARGUMENTS")) {
		t.Errorf("expected the adapter's placeholder token emitted verbatim, got %s", out)
	}
	if bytes.Contains(out, []byte("{{ARGS}}")) {
		t.Error("expected the generic marker to be replaced, not left in the output")
	}
}

func TestSlashCommand_TOMLAdapter(t *testing.T) {
	entry, ok := registry.Get(model.AdapterGemini)
	if !ok {
		t.Fatal("expected gemini in the registry")
	}
	cmd := model.Command{Description: "Run tests", Script: "go test {{ARGS}}"}
	out, err := SlashCommand(entry, cmd)
	if err != nil {
		t.Fatalf("SlashCommand: %v", err)
	}
	if !bytes.Contains(out, []byte("{{args}}")) {
		t.Errorf("expected gemini's placeholder token emitted verbatim, got %s", out)
	}
}

func TestSkillFile_IncludesAllSections(t *testing.T) {
	sk := model.Skill{
		Name:         "pdf-extractor",
		Description:  "Extracts text from PDFs",
		Instructions: "Run the extraction tool over the input file.",
		EntryPoint:   "SKILL.md",
		InputSchema: []model.CommandArgument{
			{Name: "path", ArgType: model.ArgString, Required: true, Description: "Input file path"},
		},
	}
	out := string(SkillFile(sk))
	for _, want := range []string{"# pdf-extractor", "## Instructions", "## Parameters", "**path**", "## Entry Point", "`SKILL.md`"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("expected rendered skill file to contain %q, got %s", want, out)
		}
	}
}

func TestSkillFile_OmitsParametersWhenEmpty(t *testing.T) {
	sk := model.Skill{Name: "simple", Instructions: "Do the thing.", EntryPoint: "SKILL.md"}
	out := string(SkillFile(sk))
	if bytes.Contains([]byte(out), []byte("## Parameters")) {
		t.Error("expected no Parameters section when input schema is empty")
	}
}
