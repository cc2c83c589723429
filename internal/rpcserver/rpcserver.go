// Package rpcserver is the thin RPC boundary described in spec §5/§6/§7:
// a JSON-over-HTTP handler that delegates to the catalog, reconciliation
// engine, status projection, importer, migrator, and execution guard,
// enforcing a sliding-window rate limit and a per-command test-of-fire
// lock, and serializing every error to a single display-safe string.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/importer"
	"github.com/mkern/rulesync/internal/migrate"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/reconcile"
	"github.com/mkern/rulesync/internal/runner"
	"github.com/mkern/rulesync/internal/rserr"
	"github.com/mkern/rulesync/internal/status"
)

// rateLimitErrorCode is the JSON-RPC-style error code surfaced when a
// caller exceeds the sliding-window rate limit (spec §5).
const rateLimitErrorCode = -32029

// envelope is the response shape every RPC call returns: exactly one of
// Result or Error is populated.
type envelope struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   int    `json:"code,omitempty"`
}

// RateLimiter enforces a sliding-window cap per key using a token-bucket
// limiter configured to refill at limit/window — the production default
// is a single process-wide key; tests scope the key to a command id with
// a tighter window (spec §5).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    int
	window   time.Duration
}

// NewRateLimiter builds a limiter allowing limit events per window, per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limiters: map[string]*rate.Limiter{}, limit: limit, window: window}
}

// Allow reports whether an event under key is permitted right now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(rl.limit)/rl.window.Seconds()), rl.limit)
		rl.limiters[key] = lim
	}
	return lim.Allow()
}

// testOfFireLock prevents two concurrent test invocations of the same
// command id (spec §5).
type testOfFireLock struct {
	mu      sync.Mutex
	inFlight map[string]bool
}

func newTestOfFireLock() *testOfFireLock {
	return &testOfFireLock{inFlight: map[string]bool{}}
}

func (l *testOfFireLock) tryLock(commandID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[commandID] {
		return false
	}
	l.inFlight[commandID] = true
	return true
}

func (l *testOfFireLock) unlock(commandID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, commandID)
}

// Server wires every subsystem behind a single HTTP handler.
type Server struct {
	Store      *catalog.Store
	Engine     *reconcile.Engine
	Projection *status.Projection
	Importer   *importer.Importer
	Migrator   *migrate.Migrator
	Guard      *runner.Guard

	limiter  *RateLimiter
	testLock *testOfFireLock
	logger   *log.Logger
	mux      *http.ServeMux
	httpSrv  *http.Server
}

// New builds a Server with the spec-default rate limit (30 per 10s,
// keyed process-wide). logger may be nil, in which case log.Default() is
// used.
func New(store *catalog.Store, engine *reconcile.Engine, proj *status.Projection, imp *importer.Importer, mig *migrate.Migrator, guard *runner.Guard, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		Store: store, Engine: engine, Projection: proj, Importer: imp, Migrator: mig, Guard: guard,
		limiter: NewRateLimiter(30, 10*time.Second), testLock: newTestOfFireLock(), logger: logger,
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/rpc/reconcile", s.handleReconcile)
	s.mux.HandleFunc("/rpc/status", s.handleStatus)
	s.mux.HandleFunc("/rpc/repair", s.handleRepair)
	s.mux.HandleFunc("/rpc/repair_all", s.handleRepairAll)
	s.mux.HandleFunc("/rpc/import/execute", s.handleImportExecute)
	s.mux.HandleFunc("/rpc/migrate", s.handleMigrate)
	s.mux.HandleFunc("/rpc/migrate/rollback", s.handleMigrateRollback)
	s.mux.HandleFunc("/rpc/migrate/verify", s.handleMigrateVerify)
	s.mux.HandleFunc("/rpc/execute_command", s.handleExecuteCommand)
	s.mux.HandleFunc("/rpc/execute_skill", s.handleExecuteSkill)
	s.mux.HandleFunc("/rpc/rules", s.handleRules)
}

// ServeHTTP implements http.Handler so Server can be used directly or
// wrapped by an *http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{Result: result})
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(envelope{Error: err.Error()})
}

func writeRateLimited(w http.ResponseWriter, key string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{
		Error: fmt.Sprintf("rate limit exceeded for %q", key),
		Code:  rateLimitErrorCode,
	})
}

// decodeBody decodes the request body into v, tolerating an empty body
// (common for zero-arg RPCs like migrate) by leaving v at its zero value.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return rserr.Wrapf(rserr.KindInvalidInput, err, "decode request body: %v", err)
	}
	return nil
}

func (s *Server) rateLimited(w http.ResponseWriter, key string) bool {
	if !s.limiter.Allow(key) {
		writeRateLimited(w, key)
		return true
	}
	return false
}

type reconcileRequest struct {
	RepoRoots []string `json:"repoRoots"`
	DryRun    bool     `json:"dryRun"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "reconcile") {
		return
	}
	var req reconcileRequest
	decodeBody(r, &req)
	result, err := s.Engine.Reconcile(r.Context(), req.RepoRoots, req.DryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type statusRequest struct {
	RepoRoots []string           `json:"repoRoots"`
	Status    *model.SyncStatus  `json:"status,omitempty"`
	Adapter   *model.AdapterId   `json:"adapter,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "status") {
		return
	}
	var req statusRequest
	decodeBody(r, &req)
	entries, summary, err := s.Projection.ComputeStatus(r.Context(), status.StatusFilter{
		Status: req.Status, Adapter: req.Adapter,
	}, req.RepoRoots)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, map[string]any{"entries": entries, "summary": summary})
}

type repairRequest struct {
	EntryID   string   `json:"entryId"`
	RepoRoots []string `json:"repoRoots"`
	DryRun    bool     `json:"dryRun"`
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "repair") {
		return
	}
	var req repairRequest
	decodeBody(r, &req)
	result, err := s.Projection.RepairArtifact(r.Context(), req.EntryID, req.RepoRoots, req.DryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type repairAllRequest struct {
	RepoRoots []string `json:"repoRoots"`
	DryRun    bool     `json:"dryRun"`
}

func (s *Server) handleRepairAll(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "repair_all") {
		return
	}
	var req repairAllRequest
	decodeBody(r, &req)
	result, err := s.Projection.RepairAllArtifacts(r.Context(), status.StatusFilter{}, req.RepoRoots, req.DryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type importExecuteRequest struct {
	Candidates   []importer.ImportCandidate `json:"candidates"`
	ConflictMode importer.ConflictMode      `json:"conflictMode"`
	RepoRoots    []string                   `json:"repoRoots"`
}

func (s *Server) handleImportExecute(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "import_execute") {
		return
	}
	var req importExecuteRequest
	decodeBody(r, &req)
	result, err := s.Importer.ExecuteImport(r.Context(), req.Candidates, req.ConflictMode, req.RepoRoots)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "migrate") {
		return
	}
	result, err := s.Migrator.Migrate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type rollbackRequest struct {
	BackupPath string `json:"backupPath"`
	DBPath     string `json:"dbPath"`
}

func (s *Server) handleMigrateRollback(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "migrate_rollback") {
		return
	}
	var req rollbackRequest
	decodeBody(r, &req)
	if err := s.Migrator.RollbackMigration(req.BackupPath, req.DBPath); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, map[string]bool{"success": true})
}

type verifyRequest struct {
	LocalRoots []string `json:"localRoots"`
}

func (s *Server) handleMigrateVerify(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "migrate_verify") {
		return
	}
	var req verifyRequest
	decodeBody(r, &req)
	result, err := s.Migrator.VerifyMigration(r.Context(), req.LocalRoots)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}

type executeCommandRequest struct {
	CommandID string            `json:"commandId"`
	Args      map[string]string `json:"args"`
	Trigger   string            `json:"trigger"`
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req executeCommandRequest
	decodeBody(r, &req)

	if s.rateLimited(w, req.CommandID) {
		return
	}
	if !s.testLock.tryLock(req.CommandID) {
		writeError(w, rserr.New(rserr.KindInvalidInput, fmt.Sprintf("command %s is already being tested", req.CommandID)))
		return
	}
	defer s.testLock.unlock(req.CommandID)

	cmd, err := s.Store.GetCommandByID(r.Context(), req.CommandID)
	if err != nil {
		writeError(w, err)
		return
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "rpc"
	}
	entry, err := s.Guard.ExecuteCommand(r.Context(), *cmd, req.Args, trigger)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, entry)
}

type executeSkillRequest struct {
	SkillID string   `json:"skillId"`
	Steps   []string `json:"steps"`
	Trigger string   `json:"trigger"`
}

func (s *Server) handleExecuteSkill(w http.ResponseWriter, r *http.Request) {
	var req executeSkillRequest
	decodeBody(r, &req)

	if s.rateLimited(w, req.SkillID) {
		return
	}
	if !s.testLock.tryLock(req.SkillID) {
		writeError(w, rserr.New(rserr.KindInvalidInput, fmt.Sprintf("skill %s is already being tested", req.SkillID)))
		return
	}
	defer s.testLock.unlock(req.SkillID)

	skill, err := s.Store.GetSkillByID(r.Context(), req.SkillID)
	if err != nil {
		writeError(w, err)
		return
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "rpc"
	}
	results, err := s.Guard.ExecuteSkill(r.Context(), *skill, req.Steps, trigger)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, results)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, "rules") {
		return
	}
	switch r.Method {
	case http.MethodGet:
		rules, err := s.Store.ListRules(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, rules)
	case http.MethodPost:
		var in catalog.RuleInput
		decodeBody(r, &in)
		rule, err := s.Store.CreateRule(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, rule)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Start runs the HTTP server on port, blocking until ctx is canceled or
// the server errors, then shuts down gracefully — generalizing the
// teacher's signal-handling mount/unmount lifecycle to an HTTP listener.
func (s *Server) Start(ctx context.Context, port int) error {
	s.httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("[rpcserver] listening on :%d", port)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Printf("[rpcserver] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
