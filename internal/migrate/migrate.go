// Package migrate implements the one-shot catalog-to-disk migration
// (spec §4.9): it renders every rule to a markdown file under a resolved
// storage root, snapshots the database first so the move can be rolled
// back, and offers a verification pass that diffs the files it wrote
// against the catalog they came from.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/marshal"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
	"github.com/mkern/rulesync/internal/rserr"
)

// State is a migration's lifecycle stage.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateRolledBack State = "rolled_back"
)

const localRulePathsKey = "local_rule_paths"
const storageModeKey = "storage_mode"

// MigrationResult is the outcome of one Migrate call.
type MigrationResult struct {
	Success       bool
	RulesMigrated int
	Errors        []string
	BackupPath    string
	ChecksumPath  string
}

// VerifyResult is the outcome of VerifyMigration: a diff between the
// catalog's rules and whatever the file-storage root actually contains.
type VerifyResult struct {
	IsValid         bool
	DBRuleCount     int
	FileRuleCount   int
	MissingRules    []string
	ExtraRules      []string
	MismatchedRules []string
	LoadErrors      []string
}

// Migrator is a process-wide singleton guarded by a mutex, matching the
// teacher's sync.Worker running-bool-plus-mutex idiom (only one migration
// may be in flight at a time, per spec §5).
type Migrator struct {
	Store    *catalog.Store
	Resolver *pathresolver.Resolver
	DBPath   string
	logger   *log.Logger
	nowFunc  func() time.Time

	mu    sync.Mutex
	state State
}

// New builds a Migrator. logger may be nil, in which case log.Default()
// is used.
func New(store *catalog.Store, resolver *pathresolver.Resolver, dbPath string, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Migrator{Store: store, Resolver: resolver, DBPath: dbPath, logger: logger, state: StateNotStarted, nowFunc: time.Now}
}

// State returns the migrator's current lifecycle state.
func (m *Migrator) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RulesRoot returns the file-storage root for rule markdown files, global
// or scoped to a single local repo root.
func (m *Migrator) RulesRoot(repoRoot string) string {
	if repoRoot == "" {
		return filepath.Join(m.Resolver.Home(), ".config", "rulesync", "rules")
	}
	return filepath.Join(repoRoot, ".rulesync", "rules")
}

func (m *Migrator) rulePath(r model.Rule) string {
	repoRoot := ""
	if r.Scope == model.ScopeLocal && len(r.TargetPaths) > 0 {
		repoRoot = r.TargetPaths[0]
	}
	return filepath.Join(m.RulesRoot(repoRoot), r.ID+".md")
}

// Migrate moves every catalog rule to its file-storage location, after
// snapshotting the database, per spec §4.9.
func (m *Migrator) Migrate(ctx context.Context) (MigrationResult, error) {
	m.mu.Lock()
	if m.state == StateInProgress {
		m.mu.Unlock()
		return MigrationResult{}, rserr.New(rserr.KindMigration, "a migration is already in progress")
	}
	m.state = StateInProgress
	m.mu.Unlock()

	result, err := m.runMigration(ctx)

	m.mu.Lock()
	if err != nil || !result.Success {
		m.state = StateFailed
	} else {
		m.state = StateCompleted
	}
	m.mu.Unlock()

	return result, err
}

func (m *Migrator) runMigration(ctx context.Context) (MigrationResult, error) {
	var result MigrationResult

	backupPath, checksumPath, err := m.backupDatabase()
	if err != nil {
		return result, rserr.Wrapf(rserr.KindMigration, err, "backup database before migration: %v", err)
	}
	result.BackupPath = backupPath
	result.ChecksumPath = checksumPath

	rules, err := m.Store.ListRules(ctx)
	if err != nil {
		return result, err
	}

	localRoots := map[string]bool{}
	for _, r := range rules {
		path := m.rulePath(r)
		raw, err := marshal.RuleToMarkdown(&r)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s: render: %v", r.ID, err))
			continue
		}
		if err := atomicWrite(path, raw); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s: write %s: %v", r.ID, path, err))
			continue
		}
		if err := m.Store.SetRuleFileIndex(ctx, r.ID, path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s: update index: %v", r.ID, err))
			continue
		}
		if r.Scope == model.ScopeLocal {
			for _, root := range r.TargetPaths {
				localRoots[root] = true
			}
		}
		result.RulesMigrated++
	}

	if len(localRoots) > 0 {
		roots := make([]string, 0, len(localRoots))
		for root := range localRoots {
			roots = append(roots, root)
		}
		if err := m.Store.MergeSettingStringArrayUnique(ctx, localRulePathsKey, roots...); err != nil {
			result.Errors = append(result.Errors, "persist local rule roots: "+err.Error())
		}
	}

	if err := m.Store.SetSetting(ctx, storageModeKey, "file"); err != nil {
		result.Errors = append(result.Errors, "set storage mode: "+err.Error())
	}

	result.Success = len(result.Errors) == 0
	m.logger.Printf("[migrate] migrated %d rules, success=%v", result.RulesMigrated, result.Success)
	return result, nil
}

func (m *Migrator) backupDatabase() (backupPath, checksumPath string, err error) {
	now := m.nowFunc()
	timestamp := strftime.Format("%Y%m%d%H%M%S", now)
	backupPath = fmt.Sprintf("%s.%s.migration-backup", m.DBPath, timestamp)

	src, err := os.Open(m.DBPath)
	if err != nil {
		return "", "", err
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", "", err
	}
	defer dst.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hasher), src); err != nil {
		return "", "", err
	}
	if err := dst.Sync(); err != nil {
		return "", "", err
	}

	checksumPath = backupPath + ".checksum"
	sum := hex.EncodeToString(hasher.Sum(nil))
	if err := os.WriteFile(checksumPath, []byte(sum), 0o644); err != nil {
		return "", "", err
	}
	return backupPath, checksumPath, nil
}

// RollbackMigration restores backupPath over dbPath after verifying its
// checksum, then removes the backup, the checksum, and (if empty) the
// file-storage rules directory. Refuses without a checksum file present.
func (m *Migrator) RollbackMigration(backupPath, dbPath string) error {
	checksumPath := backupPath + ".checksum"
	wantSum, err := os.ReadFile(checksumPath)
	if err != nil {
		return rserr.Wrapf(rserr.KindMigration, err, "rollback refused: no checksum file for %s", backupPath)
	}

	got, err := checksumFile(backupPath)
	if err != nil {
		return rserr.Wrapf(rserr.KindMigration, err, "rollback: read backup: %v", err)
	}
	if got != string(wantSum) {
		return rserr.New(rserr.KindMigration, "rollback refused: backup checksum mismatch")
	}

	if err := copyFile(backupPath, dbPath); err != nil {
		return rserr.Wrapf(rserr.KindMigration, err, "rollback: restore backup: %v", err)
	}

	os.Remove(backupPath)
	os.Remove(checksumPath)

	rulesDir := m.RulesRoot("")
	if entries, err := os.ReadDir(rulesDir); err == nil && len(entries) == 0 {
		os.Remove(rulesDir)
	}

	m.mu.Lock()
	m.state = StateRolledBack
	m.mu.Unlock()
	return nil
}

// VerifyMigration reloads rules from the file-storage root(s) and diffs
// them against the catalog, per spec §4.9.
func (m *Migrator) VerifyMigration(ctx context.Context, localRoots []string) (VerifyResult, error) {
	var result VerifyResult

	dbRules, err := m.Store.ListRules(ctx)
	if err != nil {
		return result, err
	}
	result.DBRuleCount = len(dbRules)
	dbByName := make(map[string]model.Rule, len(dbRules))
	for _, r := range dbRules {
		dbByName[r.Name] = r
	}

	roots := append([]string{""}, localRoots...)
	fileByName := map[string]model.Rule{}
	for _, root := range roots {
		dir := m.RulesRoot(root)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				result.LoadErrors = append(result.LoadErrors, fmt.Sprintf("%s: %v", e.Name(), err))
				continue
			}
			rule, err := marshal.MarkdownToRule(raw)
			if err != nil {
				result.LoadErrors = append(result.LoadErrors, fmt.Sprintf("%s: %v", e.Name(), err))
				continue
			}
			fileByName[rule.Name] = *rule
			result.FileRuleCount++
		}
	}

	for name, dbRule := range dbByName {
		fileRule, ok := fileByName[name]
		if !ok {
			result.MissingRules = append(result.MissingRules, name)
			continue
		}
		if fileRule.Content != dbRule.Content {
			result.MismatchedRules = append(result.MismatchedRules, name)
		}
	}
	for name := range fileByName {
		if _, ok := dbByName[name]; !ok {
			result.ExtraRules = append(result.ExtraRules, name)
		}
	}

	result.IsValid = len(result.MissingRules) == 0 && len(result.ExtraRules) == 0 &&
		len(result.MismatchedRules) == 0 && len(result.LoadErrors) == 0
	return result, nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// atomicWrite writes content to path via a temp file plus rename,
// matching the reconciliation engine's write discipline (spec §5).
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".rulesync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	if dirFile, err := os.Open(dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}
	return nil
}
