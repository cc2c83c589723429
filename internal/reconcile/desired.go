package reconcile

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mkern/rulesync/internal/format"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/registry"
)

type ruleGroupKey struct {
	Adapter  model.AdapterId
	Scope    model.Scope
	RepoRoot string
	Path     string
}

// ComputeDesired iterates the catalog and computes the full set of expected
// artifacts, keyed implicitly by path (callers key by Path when planning),
// per spec §4.6.1. repoRoots is the set of local-scope targets the caller
// wants reconciled; a rule, command, or skill whose own TargetPaths narrow
// that further is intersected against it.
func (e *Engine) ComputeDesired(ctx context.Context, repoRoots []string) ([]ExpectedArtifact, error) {
	rules, err := e.Store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	commands, err := e.Store.ListCommands(ctx)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	skills, err := e.Store.ListSkills(ctx)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	var mu sync.Mutex
	var out []ExpectedArtifact
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, err := e.desiredRuleArtifacts(rules, repoRoots)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, items...)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		items, err := e.desiredCommandStubArtifacts(commands)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, items...)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		items, err := e.desiredSlashCommandArtifacts(commands, repoRoots)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, items...)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		items, err := e.desiredSkillArtifacts(skills, repoRoots)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, items...)
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func intersectRoots(narrow []string, all []string) []string {
	if len(narrow) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(narrow))
	for _, p := range narrow {
		allowed[p] = true
	}
	var out []string
	for _, root := range all {
		if allowed[root] {
			out = append(out, root)
		}
	}
	return out
}

// desiredRuleArtifacts groups enabled rules by (adapter, path) so multiple
// rules that land in the same adapter config file are concatenated into one
// expected artifact, per spec §4.5's rule-rendering rule.
func (e *Engine) desiredRuleArtifacts(rules []model.Rule, repoRoots []string) ([]ExpectedArtifact, error) {
	groups := map[ruleGroupKey][]model.Rule{}
	order := []ruleGroupKey{}

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		for _, adapter := range r.EnabledAdapters {
			if r.Scope == model.ScopeGlobal {
				if registry.ValidateSupport(adapter, model.ScopeGlobal, model.ArtifactRule) != nil {
					continue
				}
				path, err := e.Resolver.GlobalPath(adapter, model.ArtifactRule)
				if err != nil {
					continue
				}
				key := ruleGroupKey{Adapter: adapter, Scope: model.ScopeGlobal, Path: path}
				if _, ok := groups[key]; !ok {
					order = append(order, key)
				}
				groups[key] = append(groups[key], r)
				continue
			}

			if registry.ValidateSupport(adapter, model.ScopeLocal, model.ArtifactRule) != nil {
				continue
			}
			roots := intersectRoots(r.TargetPaths, repoRoots)
			for _, root := range roots {
				path, err := e.Resolver.LocalPath(adapter, model.ArtifactRule, root)
				if err != nil {
					continue
				}
				key := ruleGroupKey{Adapter: adapter, Scope: model.ScopeLocal, RepoRoot: root, Path: path}
				if _, ok := groups[key]; !ok {
					order = append(order, key)
				}
				groups[key] = append(groups[key], r)
			}
		}
	}

	out := make([]ExpectedArtifact, 0, len(order))
	for _, key := range order {
		content := format.RuleFile(groups[key])
		out = append(out, ExpectedArtifact{
			Path: key.Path, Adapter: key.Adapter, ArtifactType: model.ArtifactRule,
			Scope: key.Scope, RepoRoot: key.RepoRoot, Content: content, ContentHash: hashContent(content),
		})
	}
	return out, nil
}

// desiredCommandStubArtifacts emits one global stub artifact per adapter
// that supports command stubs, when at least one command is exposed via
// RPC — spec §4.6.1's command-stub rule.
func (e *Engine) desiredCommandStubArtifacts(commands []model.Command) ([]ExpectedArtifact, error) {
	exposedAny := false
	for _, c := range commands {
		if c.ExposeViaRPC {
			exposedAny = true
			break
		}
	}
	if !exposedAny {
		return nil, nil
	}

	content, err := format.CommandStub(commands)
	if err != nil {
		return nil, fmt.Errorf("render command stub: %w", err)
	}
	hash := hashContent(content)

	var out []ExpectedArtifact
	for _, entry := range registry.All() {
		if !entry.Capabilities.CommandStubs {
			continue
		}
		if registry.ValidateSupport(entry.ID, model.ScopeGlobal, model.ArtifactCommandStub) != nil {
			continue
		}
		path, err := e.Resolver.GlobalPath(entry.ID, model.ArtifactCommandStub)
		if err != nil {
			continue
		}
		out = append(out, ExpectedArtifact{
			Path: path, Adapter: entry.ID, ArtifactType: model.ArtifactCommandStub,
			Scope: model.ScopeGlobal, Content: content, ContentHash: hash,
		})
	}
	return out, nil
}

func (e *Engine) desiredSlashCommandArtifacts(commands []model.Command, repoRoots []string) ([]ExpectedArtifact, error) {
	var out []ExpectedArtifact
	for _, c := range commands {
		if !c.GenerateSlashCommands {
			continue
		}
		for _, adapterID := range c.SlashCommandAdapters {
			entry, ok := registry.Get(adapterID)
			if !ok {
				continue
			}
			content, err := format.SlashCommand(entry, c)
			if err != nil {
				return nil, fmt.Errorf("render slash command %s for %s: %w", c.Name, adapterID, err)
			}
			hash := hashContent(content)

			if registry.ValidateSupport(adapterID, model.ScopeGlobal, model.ArtifactSlashCommand) == nil {
				if path, err := e.Resolver.SlashCommandPath(adapterID, c.Name, true); err == nil {
					out = append(out, ExpectedArtifact{
						Path: path, Adapter: adapterID, ArtifactType: model.ArtifactSlashCommand,
						Scope: model.ScopeGlobal, Content: content, ContentHash: hash,
					})
				}
			}

			if registry.ValidateSupport(adapterID, model.ScopeLocal, model.ArtifactSlashCommand) == nil {
				roots := intersectRoots(c.TargetPaths, repoRoots)
				for _, root := range roots {
					path, err := e.Resolver.LocalSlashCommandPath(adapterID, c.Name, root)
					if err != nil {
						continue
					}
					out = append(out, ExpectedArtifact{
						Path: path, Adapter: adapterID, ArtifactType: model.ArtifactSlashCommand,
						Scope: model.ScopeLocal, RepoRoot: root, Content: content, ContentHash: hash,
					})
				}
			}
		}
	}
	return out, nil
}

func (e *Engine) desiredSkillArtifacts(skills []model.Skill, repoRoots []string) ([]ExpectedArtifact, error) {
	var out []ExpectedArtifact
	for _, s := range skills {
		if !s.Enabled {
			continue
		}
		content := format.SkillFile(s)
		hash := hashContent(content)

		targets := s.TargetAdapters
		if len(targets) == 0 {
			targets = model.AllAdapters
		}

		for _, adapterID := range targets {
			entry, ok := registry.Get(adapterID)
			if !ok || !entry.Capabilities.Skills {
				continue
			}

			if registry.ValidateSupport(adapterID, model.ScopeGlobal, model.ArtifactSkill) == nil {
				if path, err := e.Resolver.SkillPath(adapterID, s.Name); err == nil {
					out = append(out, ExpectedArtifact{
						Path: path, Adapter: adapterID, ArtifactType: model.ArtifactSkill,
						Scope: model.ScopeGlobal, Content: content, ContentHash: hash,
					})
				}
			}

			if registry.ValidateSupport(adapterID, model.ScopeLocal, model.ArtifactSkill) == nil {
				roots := intersectRoots(s.TargetPaths, repoRoots)
				for _, root := range roots {
					path, err := e.Resolver.LocalSkillPath(adapterID, s.Name, root)
					if err != nil {
						continue
					}
					out = append(out, ExpectedArtifact{
						Path: path, Adapter: adapterID, ArtifactType: model.ArtifactSkill,
						Scope: model.ScopeLocal, RepoRoot: root, Content: content, ContentHash: hash,
					})
				}
			}
		}
	}
	return out, nil
}
