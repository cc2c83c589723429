// Package status is a stateless read model over the reconciliation core: it
// recomputes desired and actual state and joins them against the
// reconciliation log, producing a per-artifact sync status without keeping
// any persistence of its own, per spec §4.7.
package status

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mkern/rulesync/internal/cache"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/reconcile"
	"github.com/mkern/rulesync/internal/registry"
)

// ArtifactStatusEntry is one row of the projection: the resolved sync state
// of a single (artifact, adapter, scope, repo root) tuple, per spec §4.7.
type ArtifactStatusEntry struct {
	ID              string
	ArtifactID      string
	ArtifactName    string
	ArtifactType    model.ArtifactType
	Adapter         model.AdapterId
	Scope           model.Scope
	RepoRoot        string
	Status          model.SyncStatus
	ExpectedPath    string
	LastOperation   model.ReconcileOp
	LastOperationAt time.Time
	Detail          string
}

// StatusFilter prunes the projection; nil/zero fields mean "no constraint".
type StatusFilter struct {
	ArtifactType *model.ArtifactType
	Adapter      *model.AdapterId
	Scope        *model.Scope
	RepoRoot     *string
	Status       *model.SyncStatus
}

func (f StatusFilter) matches(e ArtifactStatusEntry) bool {
	if f.ArtifactType != nil && *f.ArtifactType != e.ArtifactType {
		return false
	}
	if f.Adapter != nil && *f.Adapter != e.Adapter {
		return false
	}
	if f.Scope != nil && *f.Scope != e.Scope {
		return false
	}
	if f.RepoRoot != nil && *f.RepoRoot != e.RepoRoot {
		return false
	}
	if f.Status != nil && *f.Status != e.Status {
		return false
	}
	return true
}

// StatusSummary aggregates entry counts by status.
type StatusSummary struct {
	Total       int
	Synced      int
	OutOfDate   int
	Missing     int
	Conflicted  int
	Unsupported int
	Error       int
}

// RepairResult is the outcome of repairing one or all out-of-sync entries.
type RepairResult struct {
	Result       reconcile.Result
	PostStatus   []ArtifactStatusEntry
	PostSummary  StatusSummary
}

// Projection computes status on demand from an Engine. It caches the
// actual-state scan for a short TTL so repeated status queries against a
// busy RPC server don't re-stat every known path on every call — the same
// generic cache the catalog's callers already use elsewhere in this repo.
type Projection struct {
	engine     *reconcile.Engine
	actualCache *cache.Cache[[]reconcile.FoundArtifact]
}

const actualCacheKey = "actual"

// New builds a Projection over engine. ttl <= 0 disables the actual-state
// cache entirely (every call rescans disk).
func New(engine *reconcile.Engine, ttl time.Duration) *Projection {
	p := &Projection{engine: engine}
	if ttl > 0 {
		p.actualCache = cache.New[[]reconcile.FoundArtifact](ttl, 1)
	}
	return p
}

// InvalidateCache drops any cached actual-state scan, forcing the next
// ComputeStatus call to rescan disk. Callers invoke this after a reconcile
// or repair so status reflects the write that was just made.
func (p *Projection) InvalidateCache() {
	if p.actualCache != nil {
		p.actualCache.Clear()
	}
}

func (p *Projection) computeActual(ctx context.Context, repoRoots []string) ([]reconcile.FoundArtifact, error) {
	if p.actualCache != nil {
		if cached, ok := p.actualCache.Get(actualCacheKey); ok {
			return cached, nil
		}
	}
	actual, err := p.engine.ComputeActual(ctx, repoRoots)
	if err != nil {
		return nil, err
	}
	if p.actualCache != nil {
		p.actualCache.Set(actualCacheKey, actual)
	}
	return actual, nil
}

func entryID(artifactID string, artifactType model.ArtifactType, adapter model.AdapterId, scope model.Scope, repoRoot string) string {
	return strings.Join([]string{artifactID, string(artifactType), string(adapter), string(scope), repoRoot}, "|")
}

func intersectRoots(narrow, all []string) []string {
	if len(narrow) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(narrow))
	for _, p := range narrow {
		allowed[p] = true
	}
	var out []string
	for _, r := range all {
		if allowed[r] {
			out = append(out, r)
		}
	}
	return out
}

// ComputeStatus computes the full (pre-filter) projection and returns the
// filtered entries plus a summary over the filtered set.
func (p *Projection) ComputeStatus(ctx context.Context, filter StatusFilter, repoRoots []string) ([]ArtifactStatusEntry, StatusSummary, error) {
	desired, err := p.engine.ComputeDesired(ctx, repoRoots)
	if err != nil {
		return nil, StatusSummary{}, err
	}
	actual, err := p.computeActual(ctx, repoRoots)
	if err != nil {
		return nil, StatusSummary{}, err
	}
	lastOps, err := p.engine.Store.LastReconciliationOpPerPath(ctx)
	if err != nil {
		return nil, StatusSummary{}, err
	}

	desiredByPath := make(map[string]reconcile.ExpectedArtifact, len(desired))
	for _, d := range desired {
		desiredByPath[d.Path] = d
	}
	actualByPath := make(map[string]reconcile.FoundArtifact, len(actual))
	for _, a := range actual {
		actualByPath[a.Path] = a
	}

	var out []ArtifactStatusEntry
	seenPaths := make(map[string]bool, len(desired))

	classify := func(path string) (model.SyncStatus, string) {
		d, hasDesired := desiredByPath[path]
		a, hasActual := actualByPath[path]
		switch {
		case hasDesired && hasActual && d.ContentHash == a.ContentHash:
			return model.StatusSynced, ""
		case hasDesired && hasActual:
			return model.StatusOutOfDate, ""
		case hasDesired && !hasActual:
			return model.StatusMissing, ""
		default:
			return model.StatusConflicted, "found on disk but not expected by the catalog"
		}
	}

	addEntry := func(artifactID, artifactName string, artifactType model.ArtifactType, adapter model.AdapterId, scope model.Scope, repoRoot, path string) {
		seenPaths[path] = true
		st, detail := classify(path)
		entry := ArtifactStatusEntry{
			ID: entryID(artifactID, artifactType, adapter, scope, repoRoot), ArtifactID: artifactID,
			ArtifactName: artifactName, ArtifactType: artifactType, Adapter: adapter, Scope: scope,
			RepoRoot: repoRoot, Status: st, ExpectedPath: path, Detail: detail,
		}
		if op, ok := lastOps[path]; ok {
			entry.LastOperation = op.Operation
			entry.LastOperationAt = op.Timestamp
		}
		out = append(out, entry)
	}

	addUnsupported := func(artifactID, artifactName string, artifactType model.ArtifactType, adapter model.AdapterId, scope model.Scope, repoRoot string) {
		out = append(out, ArtifactStatusEntry{
			ID: entryID(artifactID, artifactType, adapter, scope, repoRoot), ArtifactID: artifactID,
			ArtifactName: artifactName, ArtifactType: artifactType, Adapter: adapter, Scope: scope,
			RepoRoot: repoRoot, Status: model.StatusUnsupported,
			Detail: "adapter does not support this artifact type/scope",
		})
	}

	rules, err := p.engine.Store.ListRules(ctx)
	if err != nil {
		return nil, StatusSummary{}, err
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		for _, adapter := range r.EnabledAdapters {
			if r.Scope == model.ScopeGlobal {
				if err := registry.ValidateSupport(adapter, model.ScopeGlobal, model.ArtifactRule); err != nil {
					addUnsupported(r.ID, r.Name, model.ArtifactRule, adapter, model.ScopeGlobal, "")
					continue
				}
				path, err := p.engine.Resolver.GlobalPath(adapter, model.ArtifactRule)
				if err != nil {
					continue
				}
				addEntry(r.ID, r.Name, model.ArtifactRule, adapter, model.ScopeGlobal, "", path)
				continue
			}
			if err := registry.ValidateSupport(adapter, model.ScopeLocal, model.ArtifactRule); err != nil {
				addUnsupported(r.ID, r.Name, model.ArtifactRule, adapter, model.ScopeLocal, "")
				continue
			}
			for _, root := range intersectRoots(r.TargetPaths, repoRoots) {
				path, err := p.engine.Resolver.LocalPath(adapter, model.ArtifactRule, root)
				if err != nil {
					continue
				}
				addEntry(r.ID, r.Name, model.ArtifactRule, adapter, model.ScopeLocal, root, path)
			}
		}
	}

	commands, err := p.engine.Store.ListCommands(ctx)
	if err != nil {
		return nil, StatusSummary{}, err
	}
	exposedAny := false
	for _, c := range commands {
		if c.ExposeViaRPC {
			exposedAny = true
			break
		}
	}
	if exposedAny {
		for _, entry := range registry.All() {
			if !entry.Capabilities.CommandStubs {
				continue
			}
			if err := registry.ValidateSupport(entry.ID, model.ScopeGlobal, model.ArtifactCommandStub); err != nil {
				continue
			}
			path, err := p.engine.Resolver.GlobalPath(entry.ID, model.ArtifactCommandStub)
			if err != nil {
				continue
			}
			addEntry("", "command-stubs", model.ArtifactCommandStub, entry.ID, model.ScopeGlobal, "", path)
		}
	}
	for _, c := range commands {
		if !c.GenerateSlashCommands {
			continue
		}
		for _, adapterID := range c.SlashCommandAdapters {
			if err := registry.ValidateSupport(adapterID, model.ScopeGlobal, model.ArtifactSlashCommand); err != nil {
				addUnsupported(c.ID, c.Name, model.ArtifactSlashCommand, adapterID, model.ScopeGlobal, "")
			} else if path, err := p.engine.Resolver.SlashCommandPath(adapterID, c.Name, true); err == nil {
				addEntry(c.ID, c.Name, model.ArtifactSlashCommand, adapterID, model.ScopeGlobal, "", path)
			}
			if err := registry.ValidateSupport(adapterID, model.ScopeLocal, model.ArtifactSlashCommand); err == nil {
				for _, root := range intersectRoots(c.TargetPaths, repoRoots) {
					if path, err := p.engine.Resolver.LocalSlashCommandPath(adapterID, c.Name, root); err == nil {
						addEntry(c.ID, c.Name, model.ArtifactSlashCommand, adapterID, model.ScopeLocal, root, path)
					}
				}
			}
		}
	}

	skills, err := p.engine.Store.ListSkills(ctx)
	if err != nil {
		return nil, StatusSummary{}, err
	}
	for _, s := range skills {
		if !s.Enabled {
			continue
		}
		targets := s.TargetAdapters
		if len(targets) == 0 {
			targets = model.AllAdapters
		}
		for _, adapterID := range targets {
			entry, ok := registry.Get(adapterID)
			if !ok || !entry.Capabilities.Skills {
				addUnsupported(s.ID, s.Name, model.ArtifactSkill, adapterID, model.ScopeGlobal, "")
				continue
			}
			if err := registry.ValidateSupport(adapterID, model.ScopeGlobal, model.ArtifactSkill); err == nil {
				if path, err := p.engine.Resolver.SkillPath(adapterID, s.Name); err == nil {
					addEntry(s.ID, s.Name, model.ArtifactSkill, adapterID, model.ScopeGlobal, "", path)
				}
			}
			if err := registry.ValidateSupport(adapterID, model.ScopeLocal, model.ArtifactSkill); err == nil {
				for _, root := range intersectRoots(s.TargetPaths, repoRoots) {
					if path, err := p.engine.Resolver.LocalSkillPath(adapterID, s.Name, root); err == nil {
						addEntry(s.ID, s.Name, model.ArtifactSkill, adapterID, model.ScopeLocal, root, path)
					}
				}
			}
		}
	}

	// Orphaned actual-state paths: found on disk, never claimed by any
	// entity loop above, never present in the desired set either.
	for _, a := range actual {
		if seenPaths[a.Path] {
			continue
		}
		if _, ok := desiredByPath[a.Path]; ok {
			continue
		}
		out = append(out, ArtifactStatusEntry{
			ID: entryID("", a.ArtifactType, a.Adapter, a.Scope, ""), ArtifactName: filepath.Base(a.Path),
			ArtifactType: a.ArtifactType, Adapter: a.Adapter, Scope: a.Scope, Status: model.StatusConflicted,
			ExpectedPath: a.Path, Detail: "found on disk but not expected by the catalog",
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ExpectedPath < out[j].ExpectedPath })

	var filtered []ArtifactStatusEntry
	var summary StatusSummary
	for _, e := range out {
		if !filter.matches(e) {
			continue
		}
		filtered = append(filtered, e)
		summary.Total++
		switch e.Status {
		case model.StatusSynced:
			summary.Synced++
		case model.StatusOutOfDate:
			summary.OutOfDate++
		case model.StatusMissing:
			summary.Missing++
		case model.StatusConflicted:
			summary.Conflicted++
		case model.StatusUnsupported:
			summary.Unsupported++
		case model.StatusError:
			summary.Error++
		}
	}
	return filtered, summary, nil
}

// RepairArtifact repairs the single entry with the given ID: a Missing or
// OutOfDate entry is (re)written, a Conflicted entry is removed. Synced and
// Unsupported entries are no-ops. repoRoots must match the set the original
// ComputeStatus call used, since entry IDs don't carry enough to re-derive
// them on their own.
func (p *Projection) RepairArtifact(ctx context.Context, entryID string, repoRoots []string, dryRun bool) (RepairResult, error) {
	entries, _, err := p.ComputeStatus(ctx, StatusFilter{}, repoRoots)
	if err != nil {
		return RepairResult{}, err
	}
	var target *ArtifactStatusEntry
	for i := range entries {
		if entries[i].ID == entryID {
			target = &entries[i]
			break
		}
	}
	if target == nil || target.Status == model.StatusSynced || target.Status == model.StatusUnsupported {
		res, err := p.refreshedStatus(ctx, repoRoots)
		return RepairResult{PostStatus: res.entries, PostSummary: res.summary}, err
	}

	result, err := p.executeSinglePath(ctx, target.ExpectedPath, repoRoots, dryRun)
	if err != nil {
		return RepairResult{}, err
	}
	p.InvalidateCache()
	res, err := p.refreshedStatus(ctx, repoRoots)
	return RepairResult{Result: result, PostStatus: res.entries, PostSummary: res.summary}, err
}

// RepairAllArtifacts runs the reconciliation engine's standard repair
// (pruning orphans) plus a full create/update pass restricted to entries
// matching filter, then returns the refreshed projection.
func (p *Projection) RepairAllArtifacts(ctx context.Context, filter StatusFilter, repoRoots []string, dryRun bool) (RepairResult, error) {
	entries, _, err := p.ComputeStatus(ctx, filter, repoRoots)
	if err != nil {
		return RepairResult{}, err
	}

	var total reconcile.Result
	total.Success = true
	for _, e := range entries {
		if e.Status == model.StatusSynced || e.Status == model.StatusUnsupported {
			continue
		}
		r, err := p.executeSinglePath(ctx, e.ExpectedPath, repoRoots, dryRun)
		if err != nil {
			return RepairResult{}, err
		}
		total.Created += r.Created
		total.Updated += r.Updated
		total.Removed += r.Removed
		total.Unchanged += r.Unchanged
		total.Errors = append(total.Errors, r.Errors...)
		total.Warnings = append(total.Warnings, r.Warnings...)
		if !r.Success {
			total.Success = false
		}
	}

	p.InvalidateCache()
	res, err := p.refreshedStatus(ctx, repoRoots)
	return RepairResult{Result: total, PostStatus: res.entries, PostSummary: res.summary}, err
}

type refreshed struct {
	entries []ArtifactStatusEntry
	summary StatusSummary
}

func (p *Projection) refreshedStatus(ctx context.Context, repoRoots []string) (refreshed, error) {
	entries, summary, err := p.ComputeStatus(ctx, StatusFilter{}, repoRoots)
	return refreshed{entries: entries, summary: summary}, err
}

// executeSinglePath recomputes desired/actual for path alone and executes
// whatever single-item plan results, so a targeted repair never touches any
// artifact other than the one requested.
func (p *Projection) executeSinglePath(ctx context.Context, path string, repoRoots []string, dryRun bool) (reconcile.Result, error) {
	desired, err := p.engine.ComputeDesired(ctx, repoRoots)
	if err != nil {
		return reconcile.Result{}, err
	}
	actual, err := p.engine.ComputeActual(ctx, repoRoots)
	if err != nil {
		return reconcile.Result{}, err
	}
	var narrowedDesired []reconcile.ExpectedArtifact
	for _, d := range desired {
		if d.Path == path {
			narrowedDesired = append(narrowedDesired, d)
		}
	}
	var narrowedActual []reconcile.FoundArtifact
	for _, a := range actual {
		if a.Path == path {
			narrowedActual = append(narrowedActual, a)
		}
	}
	plan := reconcile.BuildPlan(narrowedDesired, narrowedActual)
	return p.engine.Execute(ctx, plan, dryRun)
}
