// Package pathresolver computes absolute, platform-aware filesystem paths
// for artifacts, deterministically, from (adapter, artifact type, scope,
// repo root, name) — and validates that a path is safe to write to.
//
// Every function here is pure given the Resolver's captured home directory:
// no environment lookups happen at call time.
package pathresolver

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/registry"
)

// Resolver resolves artifact paths against a home directory captured once
// at construction.
type Resolver struct {
	home string
}

// New builds a Resolver rooted at home. home must be absolute.
func New(home string) *Resolver {
	return &Resolver{home: filepath.Clean(home)}
}

// Home returns the captured home directory.
func (r *Resolver) Home() string { return r.home }

func (r *Resolver) expandHome(template string) string {
	if template == "" {
		return ""
	}
	if template == "~" {
		return r.home
	}
	if strings.HasPrefix(template, "~/") {
		return filepath.Join(r.home, template[2:])
	}
	return template
}

// GlobalPath resolves the single absolute global path for adapter/artifact.
// It fails for model.ArtifactSlashCommand, which requires a command name
// (use SlashCommandPath instead).
func (r *Resolver) GlobalPath(adapter model.AdapterId, artifact model.ArtifactType) (string, error) {
	e, ok := registry.Get(adapter)
	if !ok {
		return "", fmt.Errorf("unknown adapter %q", adapter)
	}
	if err := registry.ValidateSupport(adapter, model.ScopeGlobal, artifact); err != nil {
		return "", err
	}

	switch artifact {
	case model.ArtifactRule:
		return r.expandHome(e.Paths.GlobalPath), nil
	case model.ArtifactCommandStub:
		if e.Paths.GlobalCommandsDir == "" || e.Paths.CommandStubName == "" {
			return "", fmt.Errorf("adapter %q has no command stub location", adapter)
		}
		return filepath.Join(r.expandHome(e.Paths.GlobalCommandsDir), e.Paths.CommandStubName), nil
	case model.ArtifactSlashCommand:
		return "", fmt.Errorf("slash commands require a name: use SlashCommandPath")
	case model.ArtifactSkill:
		if e.Paths.GlobalSkillsDir == "" {
			return "", fmt.Errorf("adapter %q has no global skills directory", adapter)
		}
		return r.expandHome(e.Paths.GlobalSkillsDir), nil
	default:
		return "", fmt.Errorf("unknown artifact type %q", artifact)
	}
}

// LocalPath resolves the single absolute local path for adapter/artifact
// under repoRoot.
func (r *Resolver) LocalPath(adapter model.AdapterId, artifact model.ArtifactType, repoRoot string) (string, error) {
	e, ok := registry.Get(adapter)
	if !ok {
		return "", fmt.Errorf("unknown adapter %q", adapter)
	}
	if err := registry.ValidateSupport(adapter, model.ScopeLocal, artifact); err != nil {
		return "", err
	}
	if repoRoot == "" {
		return "", fmt.Errorf("repo root is required for local scope")
	}

	joinUnderRoot := func(template string) string {
		if filepath.IsAbs(template) {
			return template
		}
		return filepath.Join(repoRoot, template)
	}

	switch artifact {
	case model.ArtifactRule:
		return joinUnderRoot(e.Paths.LocalPathTemplate), nil
	case model.ArtifactCommandStub:
		if e.Paths.LocalCommandsDir == "" || e.Paths.CommandStubName == "" {
			return "", fmt.Errorf("adapter %q has no local command stub location", adapter)
		}
		return filepath.Join(joinUnderRoot(e.Paths.LocalCommandsDir), e.Paths.CommandStubName), nil
	case model.ArtifactSlashCommand:
		return "", fmt.Errorf("slash commands require a name: use LocalSlashCommandPath")
	case model.ArtifactSkill:
		if e.Paths.LocalSkillsDir == "" {
			return "", fmt.Errorf("adapter %q has no local skills directory", adapter)
		}
		return joinUnderRoot(e.Paths.LocalSkillsDir), nil
	default:
		return "", fmt.Errorf("unknown artifact type %q", artifact)
	}
}

var invalidNameChars = regexp.MustCompile(`\.\.|[/\\]`)

// validateArtifactName rejects empty names and any name containing "..",
// "/", or "\", per spec §4.2's path-safety rule.
func validateArtifactName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", kind)
	}
	if invalidNameChars.MatchString(name) {
		return fmt.Errorf("%s name %q is not path-safe", kind, name)
	}
	return nil
}

// SlashCommandPath resolves the global or local path of a slash-command
// file for adapter/commandName.
func (r *Resolver) SlashCommandPath(adapter model.AdapterId, commandName string, global bool) (string, error) {
	if err := validateArtifactName("command", commandName); err != nil {
		return "", err
	}
	e, ok := registry.Get(adapter)
	if !ok {
		return "", fmt.Errorf("unknown adapter %q", adapter)
	}
	scope := model.ScopeLocal
	if global {
		scope = model.ScopeGlobal
	}
	if err := registry.ValidateSupport(adapter, scope, model.ArtifactSlashCommand); err != nil {
		return "", err
	}
	if e.SlashCommand.FileExtension == "" {
		return "", fmt.Errorf("adapter %q has no slash-command extension", adapter)
	}
	if !global {
		return "", fmt.Errorf("local slash commands require a repo root: use LocalSlashCommandPath")
	}
	dir := r.expandHome(e.Paths.GlobalCommandsDir)
	if dir == "" {
		return "", fmt.Errorf("adapter %q has no global commands directory", adapter)
	}
	return filepath.Join(dir, commandName+"."+e.SlashCommand.FileExtension), nil
}

// LocalSlashCommandPath resolves the local slash-command path for
// adapter/commandName under repoRoot.
func (r *Resolver) LocalSlashCommandPath(adapter model.AdapterId, commandName, repoRoot string) (string, error) {
	if err := validateArtifactName("command", commandName); err != nil {
		return "", err
	}
	if repoRoot == "" {
		return "", fmt.Errorf("repo root is required for local scope")
	}
	e, ok := registry.Get(adapter)
	if !ok {
		return "", fmt.Errorf("unknown adapter %q", adapter)
	}
	if err := registry.ValidateSupport(adapter, model.ScopeLocal, model.ArtifactSlashCommand); err != nil {
		return "", err
	}
	if e.SlashCommand.FileExtension == "" {
		return "", fmt.Errorf("adapter %q has no slash-command extension", adapter)
	}
	dir := e.Paths.LocalCommandsDir
	if dir == "" {
		return "", fmt.Errorf("adapter %q has no local commands directory", adapter)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoRoot, dir)
	}
	return filepath.Join(dir, commandName+"."+e.SlashCommand.FileExtension), nil
}

// SanitizeSkillName lower-cases a skill name and replaces any run of
// non-alphanumeric characters (other than "-"/"_") with a single "-",
// trimming leading/trailing dashes. An empty result becomes "unnamed-skill".
func SanitizeSkillName(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
			lastDash = r == '-'
			continue
		}
		if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "unnamed-skill"
	}
	return out
}

// SkillPath resolves the global skill directory's SKILL.md-equivalent path
// for adapter/skillName.
func (r *Resolver) SkillPath(adapter model.AdapterId, skillName string) (string, error) {
	if err := validateArtifactName("skill", skillName); err != nil {
		return "", err
	}
	e, ok := registry.Get(adapter)
	if !ok {
		return "", fmt.Errorf("unknown adapter %q", adapter)
	}
	if err := registry.ValidateSupport(adapter, model.ScopeGlobal, model.ArtifactSkill); err != nil {
		return "", err
	}
	dir := r.expandHome(e.Paths.GlobalSkillsDir)
	if dir == "" || e.Paths.SkillFilename == "" {
		return "", fmt.Errorf("adapter %q has no global skills directory", adapter)
	}
	return filepath.Join(dir, SanitizeSkillName(skillName), e.Paths.SkillFilename), nil
}

// LocalSkillPath resolves the local skill directory's SKILL.md-equivalent
// path for adapter/skillName under repoRoot.
func (r *Resolver) LocalSkillPath(adapter model.AdapterId, skillName, repoRoot string) (string, error) {
	if err := validateArtifactName("skill", skillName); err != nil {
		return "", err
	}
	if repoRoot == "" {
		return "", fmt.Errorf("repo root is required for local scope")
	}
	e, ok := registry.Get(adapter)
	if !ok {
		return "", fmt.Errorf("unknown adapter %q", adapter)
	}
	if err := registry.ValidateSupport(adapter, model.ScopeLocal, model.ArtifactSkill); err != nil {
		return "", err
	}
	dir := e.Paths.LocalSkillsDir
	if dir == "" || e.Paths.SkillFilename == "" {
		return "", fmt.Errorf("adapter %q has no local skills directory", adapter)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoRoot, dir)
	}
	return filepath.Join(dir, SanitizeSkillName(skillName), e.Paths.SkillFilename), nil
}

// ValidateTargetPath requires an absolute path that lies under the
// resolver's home directory after normalizing "." and ".." components
// (purely lexically — no filesystem I/O).
func (r *Resolver) ValidateTargetPath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path %q is not absolute", path)
	}
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(r.home, clean)
	if err != nil {
		return fmt.Errorf("path %q cannot be related to home: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes home directory", path)
	}
	return nil
}

// ValidateEntryPoint rejects skill entry points containing "..", a leading
// "/", a leading "\", or a drive letter (":" anywhere).
func ValidateEntryPoint(entryPoint string) error {
	if entryPoint == "" {
		return fmt.Errorf("entry point must not be empty")
	}
	if strings.Contains(entryPoint, "..") {
		return fmt.Errorf("entry point %q must not contain ..", entryPoint)
	}
	if strings.HasPrefix(entryPoint, "/") || strings.HasPrefix(entryPoint, "\\") {
		return fmt.Errorf("entry point %q must be relative", entryPoint)
	}
	if strings.Contains(entryPoint, ":") {
		return fmt.Errorf("entry point %q must not contain a drive letter", entryPoint)
	}
	return nil
}
