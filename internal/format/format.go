// Package format renders catalog artifacts into the exact bytes written to
// disk for each adapter (spec §4.5). Every function here is pure: identical
// input always produces identical output, with no timestamps or process
// state leaking into the result, since the reconciliation engine hashes
// this output to decide whether a file needs to change.
package format

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mkern/rulesync/internal/marshal"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/registry"
)

// ruleFileBanner is a fixed, timestamp-free header line. Earlier drafts of
// this renderer stamped a generation time here, which broke the
// reconcile-twice idempotence invariant (spec §4.6.4) since every render
// hashed differently. A constant banner sidesteps the bug entirely rather
// than special-casing the hash computation.
const ruleFileBanner = "<!-- Generated by rulesync. Do not edit directly. -->"

// RuleFile concatenates the enabled bodies of rules, in the order given
// (callers pass catalog-insertion order), under a stable header.
func RuleFile(rules []model.Rule) []byte {
	var buf bytes.Buffer
	buf.WriteString(ruleFileBanner)
	buf.WriteString("\n\n")
	for i, r := range rules {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(strings.TrimRight(r.Content, "\n"))
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

// commandStubBanner is the fixed-text equivalent of ruleFileBanner for the
// TOML command stub; spec §9 calls out this exact rendering bug by name.
const commandStubBanner = "# Generated by rulesync. Do not edit directly."

type commandStubDoc struct {
	Command []commandStubEntry `toml:"command"`
}

type commandStubEntry struct {
	Name        string                        `toml:"name"`
	Description string                        `toml:"description"`
	Script      string                        `toml:"script"`
	Arguments   map[string]commandStubArgSpec `toml:"arguments,omitempty"`
}

type commandStubArgSpec struct {
	ArgType  string `toml:"arg_type"`
	Required bool   `toml:"required"`
}

// CommandStub renders the TOML document covering every command with
// ExposeViaRPC set, for adapters whose registry entry supports command
// stubs (COMMANDS.md / COMMANDS.toml — the wrapper extension is chosen by
// the caller, the body is always TOML per spec §4.5).
func CommandStub(commands []model.Command) ([]byte, error) {
	doc := commandStubDoc{}
	for _, c := range commands {
		if !c.ExposeViaRPC {
			continue
		}
		entry := commandStubEntry{Name: c.Name, Description: c.Description, Script: c.Script}
		if len(c.Arguments) > 0 {
			entry.Arguments = make(map[string]commandStubArgSpec, len(c.Arguments))
			for _, a := range c.Arguments {
				entry.Arguments[a.Name] = commandStubArgSpec{ArgType: string(a.ArgType), Required: a.Required}
			}
		}
		doc.Command = append(doc.Command, entry)
	}
	sort.Slice(doc.Command, func(i, j int) bool { return doc.Command[i].Name < doc.Command[j].Name })

	var body bytes.Buffer
	if err := toml.NewEncoder(&body).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode command stub: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(commandStubBanner)
	out.WriteString("\n\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// SlashCommand renders one command as a slash-command file for adapter,
// matching the registry's declared file extension. Argument placeholder
// tokens are emitted as the adapter's own ArgsPlaceholder verbatim, never
// expanded to a value — expansion is the host tool's job at invocation
// time, per spec §4.5.
func SlashCommand(entry registry.Entry, cmd model.Command) ([]byte, error) {
	script := substitutePlaceholder(cmd.Script, entry.SlashCommand.ArgsPlaceholder)

	if entry.SlashCommand.FileExtension == "toml" {
		doc := struct {
			Description string `toml:"description"`
			Prompt      string `toml:"prompt"`
		}{Description: cmd.Description, Prompt: script}
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("encode slash command: %w", err)
		}
		return buf.Bytes(), nil
	}

	fm := map[string]any{"description": cmd.Description}
	docBody := marshal.Document{Frontmatter: fm, Body: script}
	return marshal.Render(&docBody)
}

// substitutePlaceholder replaces the generic "{{ARGS}}" marker a command
// script may use with the adapter's own argument-substitution token. A
// script with no marker and an adapter with no placeholder is left as-is.
func substitutePlaceholder(script, adapterPlaceholder string) string {
	if adapterPlaceholder == "" {
		return script
	}
	return strings.ReplaceAll(script, "{{ARGS}}", adapterPlaceholder)
}

// SkillFile renders a skill's SKILL.md body: title, description, an
// Instructions section, an optional Parameters section, and an Entry Point
// section, per spec §4.5.
func SkillFile(s model.Skill) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(&buf, "%s\n\n", s.Description)
	}
	buf.WriteString("## Instructions\n\n")
	buf.WriteString(strings.TrimRight(s.Instructions, "\n"))
	buf.WriteString("\n")

	if len(s.InputSchema) > 0 {
		buf.WriteString("\n## Parameters\n\n")
		for _, p := range s.InputSchema {
			if p.Required {
				fmt.Fprintf(&buf, "- **%s** (%s, required): %s\n", p.Name, p.ArgType, p.Description)
			} else {
				fmt.Fprintf(&buf, "- **%s** (%s): %s\n", p.Name, p.ArgType, p.Description)
			}
		}
	}

	buf.WriteString("\n## Entry Point\n\n")
	fmt.Fprintf(&buf, "`%s`\n", s.EntryPoint)
	return buf.Bytes()
}

// SkillMetadataFile renders the skill.json payload alongside SKILL.md.
func SkillMetadataFile(s model.Skill) ([]byte, error) {
	return marshal.MarshalSkillMetadata(&s)
}
