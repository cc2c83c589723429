// Package registry holds the adapter registry: the single source of truth
// for which AI-assistant tools rulesync supports, what they can do, and
// where their config files live. No path or capability may be spelled
// anywhere else in the codebase.
package registry

import (
	"fmt"

	"github.com/mkern/rulesync/internal/model"
)

// Capabilities records which artifact types and scopes an adapter supports.
type Capabilities struct {
	Rules         bool
	CommandStubs  bool
	SlashCommands bool
	Skills        bool
	GlobalScope   bool
	LocalScope    bool
}

// Paths records the path templates for one adapter. GlobalPath and
// LocalPathTemplate use "~" for the home directory; LocalPathTemplate may be
// relative, in which case it is joined under the repo root. A "~" prefix is
// only ever meaningful for the global side; local paths are always rooted
// at the repo.
type Paths struct {
	GlobalPath         string
	LocalPathTemplate  string
	GlobalCommandsDir  string
	LocalCommandsDir   string
	CommandStubName    string
	GlobalSkillsDir    string
	LocalSkillsDir     string
	SkillFilename      string
}

// SlashCommandMeta records the file extension and optional argument
// placeholder token for an adapter's slash-command files.
type SlashCommandMeta struct {
	FileExtension      string
	ArgsPlaceholder    string
}

// Entry is one row of the adapter registry.
type Entry struct {
	ID           model.AdapterId
	DisplayName  string
	Description  string
	Icon         string
	Capabilities Capabilities
	Paths        Paths
	SlashCommand SlashCommandMeta
}

var entries = map[model.AdapterId]Entry{
	model.AdapterClaudeCode: {
		ID: model.AdapterClaudeCode, DisplayName: "Claude Code",
		Description: "Anthropic's terminal coding agent",
		Icon:        "claude-code",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, Skills: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.claude/CLAUDE.md",
			LocalPathTemplate: ".claude/CLAUDE.md",
			GlobalCommandsDir: "~/.claude/commands",
			LocalCommandsDir:  ".claude/commands",
			CommandStubName:   "COMMANDS.md",
			GlobalSkillsDir:   "~/.claude/skills",
			LocalSkillsDir:    ".claude/skills",
			SkillFilename:     "SKILL.md",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "md", ArgsPlaceholder: "$ARGUMENTS"},
	},
	model.AdapterGemini: {
		ID: model.AdapterGemini, DisplayName: "Gemini CLI",
		Description: "Google's Gemini command-line assistant",
		Icon:        "gemini",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.gemini/GEMINI.md",
			LocalPathTemplate: ".gemini/GEMINI.md",
			GlobalCommandsDir: "~/.gemini/commands",
			LocalCommandsDir:  ".gemini/commands",
			CommandStubName:   "COMMANDS.toml",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "toml", ArgsPlaceholder: "{{args}}"},
	},
	model.AdapterOpencode: {
		ID: model.AdapterOpencode, DisplayName: "OpenCode",
		Description: "Open-source terminal coding agent",
		Icon:        "opencode",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.config/opencode/AGENTS.md",
			LocalPathTemplate: ".opencode/AGENTS.md",
			GlobalCommandsDir: "~/.config/opencode/commands",
			LocalCommandsDir:  ".opencode/commands",
			CommandStubName:   "COMMANDS.md",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "md", ArgsPlaceholder: "$ARGUMENTS"},
	},
	model.AdapterCline: {
		ID: model.AdapterCline, DisplayName: "Cline",
		Description: "VS Code autonomous coding agent",
		Icon:        "cline",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.clinerules",
			LocalPathTemplate: ".clinerules",
			GlobalCommandsDir: "Documents/Cline/Workflows",
			LocalCommandsDir:  ".clinerules/workflows",
			CommandStubName:   "COMMANDS.md",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "md"},
	},
	model.AdapterCursor: {
		ID: model.AdapterCursor, DisplayName: "Cursor",
		Description: "AI-first code editor",
		Icon:        "cursor",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.cursorrules",
			LocalPathTemplate: ".cursorrules",
			GlobalCommandsDir: "~/.cursor/commands",
			LocalCommandsDir:  ".cursor/commands",
			CommandStubName:   "COMMANDS.md",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "md"},
	},
	model.AdapterWindsurf: {
		ID: model.AdapterWindsurf, DisplayName: "Windsurf",
		Description: "Codeium's agentic IDE",
		Icon:        "windsurf",
		Capabilities: Capabilities{Rules: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.windsurf/rules/rules.md",
			LocalPathTemplate: ".windsurf/rules/rules.md",
		},
	},
	model.AdapterCodex: {
		ID: model.AdapterCodex, DisplayName: "Codex CLI",
		Description: "OpenAI's terminal coding agent",
		Icon:        "codex",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, Skills: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.codex/AGENTS.md",
			LocalPathTemplate: ".codex/AGENTS.md",
			GlobalCommandsDir: ".agents/skills",
			LocalCommandsDir:  ".agents/skills",
			CommandStubName:   "COMMANDS.md",
			GlobalSkillsDir:   "~/.agents/skills",
			LocalSkillsDir:    ".agents/skills",
			SkillFilename:     "SKILL.md",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "md"},
	},
	model.AdapterKilo: {
		ID: model.AdapterKilo, DisplayName: "Kilo Code",
		Description: "VS Code AI coding agent",
		Icon:        "kilo",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.kilocode/rules.md",
			LocalPathTemplate: ".kilocode/rules.md",
			GlobalCommandsDir: "~/.kilocode/commands",
			LocalCommandsDir:  ".kilocode/commands",
			CommandStubName:   "COMMANDS.md",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "md"},
	},
	model.AdapterRoocode: {
		ID: model.AdapterRoocode, DisplayName: "Roo Code",
		Description: "VS Code autonomous coding agent fork",
		Icon:        "roocode",
		Capabilities: Capabilities{Rules: true, CommandStubs: true, SlashCommands: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.roo/rules.md",
			LocalPathTemplate: ".roo/rules.md",
			GlobalCommandsDir: "~/.roo/commands",
			LocalCommandsDir:  ".roo/commands",
			CommandStubName:   "COMMANDS.md",
		},
		SlashCommand: SlashCommandMeta{FileExtension: "md"},
	},
	model.AdapterAntigravity: {
		ID: model.AdapterAntigravity, DisplayName: "Antigravity",
		Description: "Browser-integrated AI assistant",
		Icon:        "antigravity",
		Capabilities: Capabilities{Rules: true, GlobalScope: true, LocalScope: true},
		Paths: Paths{
			GlobalPath:        "~/.antigravity/rules.md",
			LocalPathTemplate: ".antigravity/rules.md",
		},
	},
}

// Get returns the registry entry for adapter, if it exists.
func Get(adapter model.AdapterId) (Entry, bool) {
	e, ok := entries[adapter]
	return e, ok
}

// All returns every registry entry in a stable order (model.AllAdapters).
func All() []Entry {
	out := make([]Entry, 0, len(model.AllAdapters))
	for _, id := range model.AllAdapters {
		if e, ok := entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ValidateSupport reports whether adapter supports artifact type t in scope
// s. It returns a descriptive error when it does not, or when adapter is
// unknown.
func ValidateSupport(adapter model.AdapterId, s model.Scope, t model.ArtifactType) error {
	e, ok := Get(adapter)
	if !ok {
		return fmt.Errorf("unknown adapter %q", adapter)
	}

	switch s {
	case model.ScopeGlobal:
		if !e.Capabilities.GlobalScope {
			return fmt.Errorf("adapter %q does not support global scope", adapter)
		}
	case model.ScopeLocal:
		if !e.Capabilities.LocalScope {
			return fmt.Errorf("adapter %q does not support local scope", adapter)
		}
	default:
		return fmt.Errorf("unknown scope %q", s)
	}

	switch t {
	case model.ArtifactRule:
		if !e.Capabilities.Rules {
			return fmt.Errorf("adapter %q does not support rules", adapter)
		}
	case model.ArtifactCommandStub:
		if !e.Capabilities.CommandStubs {
			return fmt.Errorf("adapter %q does not support command stubs", adapter)
		}
	case model.ArtifactSlashCommand:
		if !e.Capabilities.SlashCommands {
			return fmt.Errorf("adapter %q does not support slash commands", adapter)
		}
	case model.ArtifactSkill:
		if !e.Capabilities.Skills {
			return fmt.Errorf("adapter %q does not support skills", adapter)
		}
	default:
		return fmt.Errorf("unknown artifact type %q", t)
	}

	return nil
}
