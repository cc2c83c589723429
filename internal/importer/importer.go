// Package importer implements the Import Pipeline (spec §4.4): it turns a
// raw document from one of several sources into candidate rules, then
// reconciles those candidates against the existing catalog with
// hash-based duplicate suppression, a persisted source-identity map for
// idempotent re-import, and a configurable name-collision policy.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
	"github.com/mkern/rulesync/internal/reconcile"
	"github.com/mkern/rulesync/internal/registry"
	"github.com/mkern/rulesync/internal/rserr"
)

// SourceType is where a candidate's raw bytes came from.
type SourceType string

const (
	SourceAIToolScan SourceType = "ai_tool_scan"
	SourceFile       SourceType = "file"
	SourceDirectory  SourceType = "directory"
	SourceURL        SourceType = "url"
	SourceClipboard  SourceType = "clipboard"
)

// ConflictMode controls how execute_import resolves a case-insensitive
// name collision against an existing rule with different content.
type ConflictMode string

const (
	ConflictSkip    ConflictMode = "skip"
	ConflictReplace ConflictMode = "replace"
	ConflictRename  ConflictMode = "rename"
)

// ImportCandidate is one proposed rule extracted from a scanned source.
type ImportCandidate struct {
	ProposedName    string
	Content         string
	Scope           model.Scope
	TargetPaths     []string
	EnabledAdapters []model.AdapterId
	SourceType      SourceType
	SourceTool      string
	SourcePath      string
}

func (c ImportCandidate) sourceKey() string {
	return string(c.SourceType) + "|" + c.SourceTool + "|" + c.SourcePath
}

// ImportScanResult is the output of any scan operation: the candidates it
// found plus any non-fatal per-item errors.
type ImportScanResult struct {
	Candidates []ImportCandidate
	Errors     []string
}

// SkippedCandidate records a candidate execute_import declined to import.
type SkippedCandidate struct {
	Name   string
	Reason string
}

// ImportConflict records a name collision execute_import left unresolved
// under ConflictSkip.
type ImportConflict struct {
	ExistingRuleID string
	ExistingName   string
	Reason         string
}

// ImportResult is the outcome of one execute_import call.
type ImportResult struct {
	Imported  []string
	Skipped   []SkippedCandidate
	Conflicts []ImportConflict
	Errors    []string
}

// ImportHistoryEntry summarizes one execute_import call, persisted under
// the "import_history" setting capped at the 50 most recent entries.
type ImportHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Conflicts int       `json:"conflicts"`
	Errors    int       `json:"errors"`
}

const (
	maxHistoryEntries  = 50
	sourceMapSettingKey = "import_source_map"
	historySettingKey   = "import_history"
)

// Importer ties the catalog, path resolver, and (optionally) the
// reconciliation engine together into the import pipeline.
type Importer struct {
	Store          *catalog.Store
	Resolver       *pathresolver.Resolver
	Engine         *reconcile.Engine
	HTTPClient     *http.Client
	MaxUploadBytes int64
	logger         *log.Logger
	nowFunc        func() time.Time
}

// New builds an Importer. engine may be nil, in which case execute_import
// never triggers a reconcile pass. logger may be nil, in which case
// log.Default() is used, matching the teacher's unconditional logger use.
func New(store *catalog.Store, resolver *pathresolver.Resolver, engine *reconcile.Engine, maxUploadBytes int64, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.Default()
	}
	return &Importer{
		Store: store, Resolver: resolver, Engine: engine,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		MaxUploadBytes: maxUploadBytes,
		logger:         logger,
		nowFunc:        time.Now,
	}
}

var genericStems = map[string]bool{
	"agents": true, "commands": true, "gemini": true, "claude": true,
	"rules": true, ".clinerules": true, ".cursorrules": true,
}

var nonNameChars = regexp.MustCompile(`[^A-Za-z0-9_\-\s]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeName applies spec §4.4's sanitization rule: keep only
// [A-Za-z0-9_\-\s], collapse whitespace to '-', empty result -> "imported-rule".
func SanitizeName(name string) string {
	cleaned := nonNameChars.ReplaceAllString(name, "")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return "imported-rule"
	}
	return cleaned
}

// inferName resolves a candidate's proposed name per spec §4.4: payload
// name, else file stem, else a source-type-specific default, replacing
// generic stems with "{tool}-import" when the source tool is known.
func inferName(payloadName, stem, sourceTool string) string {
	name := strings.TrimSpace(payloadName)
	if name == "" {
		name = strings.TrimSpace(stem)
	}
	if name == "" {
		name = "imported-rule"
	}
	if genericStems[strings.ToLower(name)] && sourceTool != "" {
		name = sourceTool + "-import"
	}
	return SanitizeName(name)
}

type candidatePayload struct {
	Name            string   `json:"name" yaml:"name"`
	Content         string   `json:"content" yaml:"content"`
	Scope           string   `json:"scope" yaml:"scope"`
	TargetPaths     []string `json:"targetPaths" yaml:"targetPaths"`
	EnabledAdapters []string `json:"enabledAdapters" yaml:"enabledAdapters"`
}

// extractCandidate tries JSON, then YAML, then falls back to treating the
// whole document as raw rule content, per spec §4.4.
func extractCandidate(raw []byte, stem string, sourceType SourceType, sourceTool, sourcePath string) ImportCandidate {
	var payload candidatePayload
	matched := false
	if json.Unmarshal(raw, &payload) == nil && (payload.Name != "" || payload.Content != "") {
		matched = true
	} else if yaml.Unmarshal(raw, &payload) == nil && (payload.Name != "" || payload.Content != "") {
		matched = true
	}

	c := ImportCandidate{SourceType: sourceType, SourceTool: sourceTool, SourcePath: sourcePath}
	if matched {
		c.Content = payload.Content
		c.ProposedName = inferName(payload.Name, stem, sourceTool)
		if payload.Scope != "" {
			c.Scope = model.Scope(payload.Scope)
		} else {
			c.Scope = model.ScopeGlobal
		}
		c.TargetPaths = payload.TargetPaths
		for _, a := range payload.EnabledAdapters {
			c.EnabledAdapters = append(c.EnabledAdapters, model.AdapterId(a))
		}
		return c
	}

	c.Content = string(raw)
	c.ProposedName = inferName("", stem, sourceTool)
	c.Scope = model.ScopeGlobal
	return c
}

// ApplyToolSuffixPolicy suffixes each candidate's proposed name with its
// source tool id whenever the same inferred name appears from more than
// one distinct source tool within the batch, per spec §4.4.
func ApplyToolSuffixPolicy(candidates []ImportCandidate) []ImportCandidate {
	toolsByName := map[string]map[string]bool{}
	for _, c := range candidates {
		if c.SourceTool == "" {
			continue
		}
		if toolsByName[c.ProposedName] == nil {
			toolsByName[c.ProposedName] = map[string]bool{}
		}
		toolsByName[c.ProposedName][c.SourceTool] = true
	}
	out := make([]ImportCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = c
		if len(toolsByName[c.ProposedName]) > 1 && c.SourceTool != "" {
			out[i].ProposedName = c.ProposedName + "-" + c.SourceTool
		}
	}
	return out
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (im *Importer) checkSize(n int) error {
	if im.MaxUploadBytes > 0 && int64(n) > im.MaxUploadBytes {
		return rserr.New(rserr.KindInvalidInput, fmt.Sprintf("content exceeds max upload size of %d bytes", im.MaxUploadBytes))
	}
	return nil
}

// ScanFile extracts a single candidate from a file path.
func (im *Importer) ScanFile(data []byte, path string) (ImportScanResult, error) {
	if err := im.checkSize(len(data)); err != nil {
		return ImportScanResult{Errors: []string{err.Error()}}, nil
	}
	c := extractCandidate(data, stemOf(path), SourceFile, "", path)
	return ImportScanResult{Candidates: []ImportCandidate{c}}, nil
}

// FileEntry is one file handed to ScanDirectory by the caller, which owns
// the actual directory walk (so this package never needs to make its own
// assumptions about symlink or hidden-file policy).
type FileEntry struct {
	Path string
	Data []byte
}

// ScanDirectory extracts one candidate per file entry.
func (im *Importer) ScanDirectory(entries []FileEntry) ImportScanResult {
	var result ImportScanResult
	for _, e := range entries {
		if err := im.checkSize(len(e.Data)); err != nil {
			result.Errors = append(result.Errors, e.Path+": "+err.Error())
			continue
		}
		result.Candidates = append(result.Candidates, extractCandidate(e.Data, stemOf(e.Path), SourceDirectory, "", e.Path))
	}
	return result
}

// ScanURL fetches url and extracts a single candidate from its body,
// enforcing MaxUploadBytes against the response body.
func (im *Importer) ScanURL(ctx context.Context, url string) (ImportScanResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ImportScanResult{}, rserr.Wrapf(rserr.KindIo, err, "build import request: %v", err)
	}
	resp, err := im.HTTPClient.Do(req)
	if err != nil {
		return ImportScanResult{}, rserr.Wrapf(rserr.KindIo, err, "fetch import url: %v", err)
	}
	defer resp.Body.Close()

	limit := im.MaxUploadBytes
	if limit <= 0 {
		limit = 10 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return ImportScanResult{}, rserr.Wrapf(rserr.KindIo, err, "read import url body: %v", err)
	}
	if int64(len(data)) > limit {
		return ImportScanResult{Errors: []string{fmt.Sprintf("%s: exceeds max upload size of %d bytes", url, limit)}}, nil
	}

	c := extractCandidate(data, stemOf(url), SourceURL, "", url)
	return ImportScanResult{Candidates: []ImportCandidate{c}}, nil
}

// ScanClipboard extracts a single candidate from pasted text.
func (im *Importer) ScanClipboard(text string) (ImportScanResult, error) {
	if err := im.checkSize(len(text)); err != nil {
		return ImportScanResult{Errors: []string{err.Error()}}, nil
	}
	c := extractCandidate([]byte(text), "clipboard", SourceClipboard, "", "clipboard")
	return ImportScanResult{Candidates: []ImportCandidate{c}}, nil
}

// ScanAITool reads adapter's global rule file, if any, and proposes it as
// an import candidate — the "AI-tool scan" source of spec §4.4.
func (im *Importer) ScanAITool(adapter model.AdapterId, content []byte) (ImportScanResult, error) {
	entry, ok := registry.Get(adapter)
	if !ok {
		return ImportScanResult{}, fmt.Errorf("unknown adapter %q", adapter)
	}
	path, err := im.Resolver.GlobalPath(adapter, model.ArtifactRule)
	if err != nil {
		return ImportScanResult{}, nil
	}
	if err := im.checkSize(len(content)); err != nil {
		return ImportScanResult{Errors: []string{err.Error()}}, nil
	}
	c := extractCandidate(content, string(entry.ID), SourceAIToolScan, string(entry.ID), path)
	return ImportScanResult{Candidates: []ImportCandidate{c}}, nil
}

func hashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (im *Importer) loadSourceMap(ctx context.Context) (map[string]string, error) {
	raw, err := im.Store.GetSetting(ctx, sourceMapSettingKey)
	if err != nil || raw == "" {
		return map[string]string{}, err
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]string{}, nil
	}
	return m, nil
}

func (im *Importer) saveSourceMap(ctx context.Context, m map[string]string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return rserr.Wrapf(rserr.KindSerialization, err, "marshal import source map: %v", err)
	}
	return im.Store.SetSetting(ctx, sourceMapSettingKey, string(raw))
}

func (im *Importer) appendHistory(ctx context.Context, entry ImportHistoryEntry) error {
	raw, err := im.Store.GetSetting(ctx, historySettingKey)
	if err != nil {
		return err
	}
	var history []ImportHistoryEntry
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &history)
	}
	history = append(history, entry)
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	out, err := json.Marshal(history)
	if err != nil {
		return rserr.Wrapf(rserr.KindSerialization, err, "marshal import history: %v", err)
	}
	return im.Store.SetSetting(ctx, historySettingKey, string(out))
}

// ImportHistory returns the persisted history entries, newest last.
func (im *Importer) ImportHistory(ctx context.Context) ([]ImportHistoryEntry, error) {
	raw, err := im.Store.GetSetting(ctx, historySettingKey)
	if err != nil || raw == "" {
		return nil, err
	}
	var history []ImportHistoryEntry
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, nil
	}
	return history, nil
}

func findRuleByNameCI(rules []model.Rule, name string) (*model.Rule, bool) {
	for i := range rules {
		if strings.EqualFold(rules[i].Name, name) {
			return &rules[i], true
		}
	}
	return nil, false
}

func uniqueRenamedName(rules []model.Rule, base string) string {
	taken := make(map[string]bool, len(rules))
	for _, r := range rules {
		taken[strings.ToLower(r.Name)] = true
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

// ExecuteImport applies candidates to the catalog per spec §4.4's ordered
// per-candidate algorithm, then (if an Engine was supplied) triggers a
// reconcile pass and folds any resulting errors into the returned result.
func (im *Importer) ExecuteImport(ctx context.Context, candidates []ImportCandidate, conflictMode ConflictMode, repoRoots []string) (ImportResult, error) {
	var result ImportResult

	sourceMap, err := im.loadSourceMap(ctx)
	if err != nil {
		return ImportResult{}, err
	}

	for _, c := range candidates {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			result.Skipped = append(result.Skipped, SkippedCandidate{Name: c.ProposedName, Reason: "empty content"})
			continue
		}

		rules, err := im.Store.ListRules(ctx)
		if err != nil {
			return ImportResult{}, err
		}

		hash := hashContent(c.Content)
		if existing := findRuleByHash(rules, hash); existing != nil {
			result.Skipped = append(result.Skipped, SkippedCandidate{
				Name: c.ProposedName, Reason: fmt.Sprintf("Duplicate content already exists as '%s'", existing.Name),
			})
			continue
		}

		key := c.sourceKey()
		if ruleID, ok := sourceMap[key]; ok {
			if existing, err := im.Store.GetRuleByID(ctx, ruleID); err == nil {
				enabled := true
				if _, err := im.Store.UpdateRule(ctx, existing.ID, catalog.RuleInput{
					Name: &c.ProposedName, Content: &c.Content, Scope: &c.Scope,
					TargetPaths: &c.TargetPaths, EnabledAdapters: &c.EnabledAdapters, Enabled: &enabled,
				}); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", c.ProposedName, err))
					continue
				}
				result.Imported = append(result.Imported, existing.ID)
				continue
			}
		}

		if existing, ok := findRuleByNameCI(rules, c.ProposedName); ok {
			if existing.Content == c.Content {
				result.Skipped = append(result.Skipped, SkippedCandidate{Name: c.ProposedName, Reason: "duplicate name+content"})
				continue
			}
			switch conflictMode {
			case ConflictReplace:
				if _, err := im.Store.UpdateRule(ctx, existing.ID, catalog.RuleInput{
					Content: &c.Content, Scope: &c.Scope, TargetPaths: &c.TargetPaths, EnabledAdapters: &c.EnabledAdapters,
				}); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("replace %s: %v", c.ProposedName, err))
					continue
				}
				sourceMap[key] = existing.ID
				result.Imported = append(result.Imported, existing.ID)
			case ConflictRename:
				renamed := uniqueRenamedName(rules, c.ProposedName)
				created, err := im.Store.CreateRule(ctx, catalog.RuleInput{
					Name: &renamed, Content: &c.Content, Scope: &c.Scope,
					TargetPaths: &c.TargetPaths, EnabledAdapters: &c.EnabledAdapters,
				})
				if err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("rename-create %s: %v", c.ProposedName, err))
					continue
				}
				sourceMap[key] = created.ID
				result.Imported = append(result.Imported, created.ID)
			default: // ConflictSkip
				result.Conflicts = append(result.Conflicts, ImportConflict{
					ExistingRuleID: existing.ID, ExistingName: existing.Name, Reason: "Name collision with different content",
				})
			}
			continue
		}

		created, err := im.Store.CreateRule(ctx, catalog.RuleInput{
			Name: &c.ProposedName, Content: &c.Content, Scope: &c.Scope,
			TargetPaths: &c.TargetPaths, EnabledAdapters: &c.EnabledAdapters,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create %s: %v", c.ProposedName, err))
			continue
		}
		sourceMap[key] = created.ID
		result.Imported = append(result.Imported, created.ID)
	}

	if err := im.saveSourceMap(ctx, sourceMap); err != nil {
		return result, err
	}
	if err := im.appendHistory(ctx, ImportHistoryEntry{
		Timestamp: im.nowFunc(), Imported: len(result.Imported), Skipped: len(result.Skipped),
		Conflicts: len(result.Conflicts), Errors: len(result.Errors),
	}); err != nil {
		return result, err
	}

	if im.Engine != nil {
		syncResult, err := im.Engine.Reconcile(ctx, repoRoots, false)
		if err != nil {
			result.Errors = append(result.Errors, "sync pass failed: "+err.Error())
		} else {
			result.Errors = append(result.Errors, syncResult.Errors...)
		}
	}

	return result, nil
}

func findRuleByHash(rules []model.Rule, hash string) *model.Rule {
	for i := range rules {
		if hashContent(rules[i].Content) == hash {
			return &rules[i]
		}
	}
	return nil
}

var _ = sort.Strings // keep sort imported for future candidate ordering use
