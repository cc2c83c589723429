package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/mkern/rulesync/internal/model"
)

func TestStore_AppendAndListExecutionLogs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.AppendExecutionLog(ctx, model.ExecutionLogEntry{
		CommandName: "deploy",
		ExitCode:    0,
		ExecutedAt:  time.Now(),
		Trigger:     "manual",
		Attempt:     1,
	})
	if err != nil {
		t.Fatalf("AppendExecutionLog: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero id")
	}

	logs, err := store.ListExecutionLogs(ctx, 10)
	if err != nil {
		t.Fatalf("ListExecutionLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].CommandName != "deploy" {
		t.Errorf("expected command name to round-trip, got %q", logs[0].CommandName)
	}
}

func TestStore_TrimExecutionLogs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.AppendExecutionLog(ctx, model.ExecutionLogEntry{CommandName: "c", ExecutedAt: time.Now()}); err != nil {
			t.Fatalf("AppendExecutionLog: %v", err)
		}
	}
	if err := store.TrimExecutionLogs(ctx, 2); err != nil {
		t.Fatalf("TrimExecutionLogs: %v", err)
	}
	logs, err := store.ListExecutionLogs(ctx, 0)
	if err != nil {
		t.Fatalf("ListExecutionLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs after trim, got %d", len(logs))
	}
}

func TestStore_AppendSyncLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.AppendSyncLog(ctx, model.SyncLogEntry{
		Timestamp:    time.Now(),
		FilesWritten: 3,
		Status:       "success",
		Trigger:      "cli",
	})
	if err != nil {
		t.Fatalf("AppendSyncLog: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero id")
	}

	logs, err := store.ListSyncLogs(ctx, 0)
	if err != nil {
		t.Fatalf("ListSyncLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].FilesWritten != 3 {
		t.Fatalf("expected one sync log with 3 files written, got %+v", logs)
	}
}

func TestStore_AppendReconciliationLog_AndLastOpPerPath(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	path := "/home/user/.claude/rules/a.md"
	if _, err := store.AppendReconciliationLog(ctx, model.ReconciliationLogEntry{
		Timestamp: time.Now(), Operation: model.OpCreate, Path: path, Result: model.ResultSuccess,
	}); err != nil {
		t.Fatalf("AppendReconciliationLog (create): %v", err)
	}
	if _, err := store.AppendReconciliationLog(ctx, model.ReconciliationLogEntry{
		Timestamp: time.Now(), Operation: model.OpUpdate, Path: path, Result: model.ResultSuccess,
	}); err != nil {
		t.Fatalf("AppendReconciliationLog (update): %v", err)
	}

	last, err := store.LastReconciliationOpPerPath(ctx)
	if err != nil {
		t.Fatalf("LastReconciliationOpPerPath: %v", err)
	}
	entry, ok := last[path]
	if !ok {
		t.Fatalf("expected an entry for %q", path)
	}
	if entry.Operation != model.OpUpdate {
		t.Errorf("expected the last op to be update, got %q", entry.Operation)
	}
}
