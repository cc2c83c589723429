package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
	"github.com/mkern/rulesync/internal/registry"
)

// ComputeActual scans only the known, registry-declared locations for each
// adapter — never a recursive filesystem walk — per spec §4.6.2.
func (e *Engine) ComputeActual(ctx context.Context, repoRoots []string) ([]FoundArtifact, error) {
	var mu sync.Mutex
	var out []FoundArtifact
	g, _ := errgroup.WithContext(ctx)

	add := func(items []FoundArtifact) {
		mu.Lock()
		out = append(out, items...)
		mu.Unlock()
	}

	for _, entry := range registry.All() {
		entry := entry
		g.Go(func() error {
			add(e.probeSingleFileArtifacts(entry, model.ArtifactRule, repoRoots))
			return nil
		})
		g.Go(func() error {
			add(e.probeSingleFileArtifacts(entry, model.ArtifactCommandStub, repoRoots))
			return nil
		})
		g.Go(func() error {
			add(e.probeSlashCommandDir(entry, repoRoots))
			return nil
		})
		g.Go(func() error {
			add(e.probeSkillsDir(entry, repoRoots))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) probeFile(path string, adapter model.AdapterId, artifactType model.ArtifactType, scope model.Scope) (FoundArtifact, bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		return FoundArtifact{}, false, ""
	}
	if info.IsDir() {
		return FoundArtifact{}, false, ""
	}
	if info.Size() > maxProbeBytes {
		return FoundArtifact{}, false, "skipped oversized file: " + path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FoundArtifact{}, false, "failed to read " + path + ": " + err.Error()
	}
	return FoundArtifact{
		Path: path, Adapter: adapter, ArtifactType: artifactType, Scope: scope, ContentHash: hashContent(data),
	}, true, ""
}

func (e *Engine) probeSingleFileArtifacts(entry registry.Entry, artifactType model.ArtifactType, repoRoots []string) []FoundArtifact {
	var out []FoundArtifact

	if registry.ValidateSupport(entry.ID, model.ScopeGlobal, artifactType) == nil {
		if path, err := e.Resolver.GlobalPath(entry.ID, artifactType); err == nil {
			if found, ok, warning := e.probeFile(path, entry.ID, artifactType, model.ScopeGlobal); ok {
				out = append(out, found)
			} else if warning != "" {
				e.logger.Printf("%s %s", artifactLogPrefix(model.OpCheck), warning)
			}
		}
	}

	if registry.ValidateSupport(entry.ID, model.ScopeLocal, artifactType) == nil {
		for _, root := range repoRoots {
			path, err := e.Resolver.LocalPath(entry.ID, artifactType, root)
			if err != nil {
				continue
			}
			if found, ok, warning := e.probeFile(path, entry.ID, artifactType, model.ScopeLocal); ok {
				out = append(out, found)
			} else if warning != "" {
				e.logger.Printf("%s %s", artifactLogPrefix(model.OpCheck), warning)
			}
		}
	}
	return out
}

func (e *Engine) probeSlashCommandDir(entry registry.Entry, repoRoots []string) []FoundArtifact {
	var out []FoundArtifact
	ext := "." + entry.SlashCommand.FileExtension
	if entry.SlashCommand.FileExtension == "" {
		return out
	}

	scan := func(dir string, scope model.Scope) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, de := range entries {
			if de.IsDir() || !strings.HasSuffix(de.Name(), ext) {
				continue
			}
			path := filepath.Join(dir, de.Name())
			if found, ok, warning := e.probeFile(path, entry.ID, model.ArtifactSlashCommand, scope); ok {
				out = append(out, found)
			} else if warning != "" {
				e.logger.Printf("%s %s", artifactLogPrefix(model.OpCheck), warning)
			}
		}
	}

	if registry.ValidateSupport(entry.ID, model.ScopeGlobal, model.ArtifactSlashCommand) == nil && entry.Paths.GlobalCommandsDir != "" {
		scan(expandGlobalDir(e.Resolver, entry.Paths.GlobalCommandsDir), model.ScopeGlobal)
	}
	if registry.ValidateSupport(entry.ID, model.ScopeLocal, model.ArtifactSlashCommand) == nil {
		for _, root := range repoRoots {
			dir := entry.Paths.LocalCommandsDir
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(root, dir)
			}
			scan(dir, model.ScopeLocal)
		}
	}
	return out
}

func (e *Engine) probeSkillsDir(entry registry.Entry, repoRoots []string) []FoundArtifact {
	var out []FoundArtifact
	if entry.Paths.SkillFilename == "" {
		return out
	}

	scan := func(dir string, scope model.Scope) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, de := range entries {
			if !de.IsDir() {
				continue
			}
			path := filepath.Join(dir, de.Name(), entry.Paths.SkillFilename)
			if found, ok, warning := e.probeFile(path, entry.ID, model.ArtifactSkill, scope); ok {
				out = append(out, found)
			} else if warning != "" {
				e.logger.Printf("%s %s", artifactLogPrefix(model.OpCheck), warning)
			}
		}
	}

	if registry.ValidateSupport(entry.ID, model.ScopeGlobal, model.ArtifactSkill) == nil && entry.Paths.GlobalSkillsDir != "" {
		scan(expandGlobalDir(e.Resolver, entry.Paths.GlobalSkillsDir), model.ScopeGlobal)
	}
	if registry.ValidateSupport(entry.ID, model.ScopeLocal, model.ArtifactSkill) == nil {
		for _, root := range repoRoots {
			dir := entry.Paths.LocalSkillsDir
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(root, dir)
			}
			scan(dir, model.ScopeLocal)
		}
	}
	return out
}

func expandGlobalDir(r *pathresolver.Resolver, template string) string {
	if template == "~" {
		return r.Home()
	}
	if strings.HasPrefix(template, "~/") {
		return filepath.Join(r.Home(), template[2:])
	}
	return template
}
