package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/mkern/rulesync/internal/model"
)

// Execute applies a Plan to disk: creates and updates are written via a
// temp-file-plus-rename so a crash mid-write never leaves a half-written
// artifact, removes delete the found file outright, and unchanged items are
// only logged. dryRun skips every filesystem mutation but still reports
// counts and appends log entries marked skipped, per spec §4.6.4.
func (e *Engine) Execute(ctx context.Context, plan Plan, dryRun bool) (Result, error) {
	result := Result{Success: true}

	writeItems := append(append([]PlanItem{}, plan.ToCreate...), plan.ToUpdate...)
	for _, item := range writeItems {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		logResult := model.ResultSuccess
		var errMsg string
		failed := false

		if !dryRun {
			if err := atomicWrite(item.Path, item.Expected.Content); err != nil {
				logResult = model.ResultFailed
				errMsg = err.Error()
				failed = true
				result.Success = false
				result.Errors = append(result.Errors, item.Path+": "+err.Error())
			}
		} else {
			logResult = model.ResultSkipped
		}

		if !failed {
			if item.Op == model.OpCreate {
				result.Created++
			} else {
				result.Updated++
			}
		}

		e.appendReconciliationLog(ctx, item, logResult, errMsg)
	}

	for _, item := range plan.ToRemove {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		logResult := model.ResultSuccess
		var errMsg string
		failed := false

		if !dryRun {
			if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
				logResult = model.ResultFailed
				errMsg = err.Error()
				failed = true
				result.Success = false
				result.Errors = append(result.Errors, item.Path+": "+err.Error())
			}
		} else {
			logResult = model.ResultSkipped
		}

		if !failed {
			result.Removed++
		}
		e.appendReconciliationLog(ctx, item, logResult, errMsg)
	}

	for _, item := range plan.Unchanged {
		result.Unchanged++
		e.appendReconciliationLog(ctx, item, model.ResultSuccess, "")
	}

	return result, nil
}

func (e *Engine) appendReconciliationLog(ctx context.Context, item PlanItem, result model.ReconcileResultKind, errMsg string) {
	entry := model.ReconciliationLogEntry{
		Timestamp: time.Now(), Operation: item.Op, Path: item.Path, Result: result, ErrorMessage: errMsg,
	}
	if item.Expected != nil {
		entry.ArtifactType = item.Expected.ArtifactType
		entry.Adapter = item.Expected.Adapter
		entry.Scope = item.Expected.Scope
	} else if item.Found != nil {
		entry.ArtifactType = item.Found.ArtifactType
		entry.Adapter = item.Found.Adapter
		entry.Scope = item.Found.Scope
	}
	if _, err := e.Store.AppendReconciliationLog(ctx, entry); err != nil {
		e.logger.Printf("%s failed to append reconciliation log for %s: %v", artifactLogPrefix(item.Op), item.Path, err)
	}
}

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
