package catalog

import (
	"context"
	"database/sql"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/rserr"
)

// AppendExecutionLog records one command or skill run. Entries are
// append-only; nothing ever updates or deletes a row here except retention
// trimming (spec §4.6 caps history, which callers enforce by calling
// TrimExecutionLogs after appending).
func (s *Store) AppendExecutionLog(ctx context.Context, e model.ExecutionLogEntry) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO execution_logs
			(command_id, command_name, arguments_json, stdout, stderr, exit_code, duration_ms, executed_at, trigger_source, failure_class, adapter_context, redacted, attempt)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.CommandID, e.CommandName, e.ArgumentsJSON, e.Stdout, e.Stderr, e.ExitCode, e.DurationMS,
			toUnix(e.ExecutedAt), e.Trigger, e.FailureClass, e.AdapterContext, boolToInt(e.Redacted), e.Attempt)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "append execution log: %v", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func scanExecutionLog(row interface{ Scan(...any) error }) (*model.ExecutionLogEntry, error) {
	var e model.ExecutionLogEntry
	var executedAt int64
	var redacted int
	if err := row.Scan(&e.ID, &e.CommandID, &e.CommandName, &e.ArgumentsJSON, &e.Stdout, &e.Stderr, &e.ExitCode,
		&e.DurationMS, &executedAt, &e.Trigger, &e.FailureClass, &e.AdapterContext, &redacted, &e.Attempt); err != nil {
		return nil, err
	}
	e.ExecutedAt = fromUnix(executedAt)
	e.Redacted = redacted != 0
	return &e, nil
}

const executionLogColumns = `id, command_id, command_name, arguments_json, stdout, stderr, exit_code, duration_ms, executed_at, trigger_source, failure_class, adapter_context, redacted, attempt`

// ListExecutionLogs returns the most recent limit execution log rows,
// newest first. limit <= 0 means no limit.
func (s *Store) ListExecutionLogs(ctx context.Context, limit int) ([]model.ExecutionLogEntry, error) {
	var out []model.ExecutionLogEntry
	err := s.withConn(func(db *sql.DB) error {
		query := `SELECT ` + executionLogColumns + ` FROM execution_logs ORDER BY id DESC`
		var rows *sql.Rows
		var err error
		if limit > 0 {
			rows, err = db.QueryContext(ctx, query+` LIMIT ?`, limit)
		} else {
			rows, err = db.QueryContext(ctx, query)
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "list execution logs: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanExecutionLog(rows)
			if err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan execution log: %v", err)
			}
			out = append(out, *e)
		}
		return rows.Err()
	})
	return out, err
}

// TrimExecutionLogs deletes all but the most recent keep rows.
func (s *Store) TrimExecutionLogs(ctx context.Context, keep int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM execution_logs WHERE id NOT IN (
			SELECT id FROM execution_logs ORDER BY id DESC LIMIT ?)`, keep)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "trim execution logs: %v", err)
		}
		return nil
	})
}

// AppendSyncLog records one end-to-end reconcile invocation summary.
func (s *Store) AppendSyncLog(ctx context.Context, e model.SyncLogEntry) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO sync_logs (timestamp, files_written, status, trigger_source)
			VALUES (?,?,?,?)`, toUnix(e.Timestamp), e.FilesWritten, e.Status, e.Trigger)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "append sync log: %v", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// ListSyncLogs returns the most recent limit sync log rows, newest first.
func (s *Store) ListSyncLogs(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	var out []model.SyncLogEntry
	err := s.withConn(func(db *sql.DB) error {
		query := `SELECT id, timestamp, files_written, status, trigger_source FROM sync_logs ORDER BY id DESC`
		var rows *sql.Rows
		var err error
		if limit > 0 {
			rows, err = db.QueryContext(ctx, query+` LIMIT ?`, limit)
		} else {
			rows, err = db.QueryContext(ctx, query)
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "list sync logs: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e model.SyncLogEntry
			var ts int64
			if err := rows.Scan(&e.ID, &ts, &e.FilesWritten, &e.Status, &e.Trigger); err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan sync log: %v", err)
			}
			e.Timestamp = fromUnix(ts)
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// AppendReconciliationLog records one executed plan operation.
func (s *Store) AppendReconciliationLog(ctx context.Context, e model.ReconciliationLogEntry) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO reconciliation_logs
			(timestamp, operation, artifact_type, adapter, scope, path, result, error_message)
			VALUES (?,?,?,?,?,?,?,?)`,
			toUnix(e.Timestamp), string(e.Operation), string(e.ArtifactType), string(e.Adapter), string(e.Scope),
			e.Path, string(e.Result), e.ErrorMessage)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "append reconciliation log: %v", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func scanReconciliationLog(row interface{ Scan(...any) error }) (*model.ReconciliationLogEntry, error) {
	var e model.ReconciliationLogEntry
	var ts int64
	var op, artifactType, adapter, scope, result string
	if err := row.Scan(&e.ID, &ts, &op, &artifactType, &adapter, &scope, &e.Path, &result, &e.ErrorMessage); err != nil {
		return nil, err
	}
	e.Timestamp = fromUnix(ts)
	e.Operation = model.ReconcileOp(op)
	e.ArtifactType = model.ArtifactType(artifactType)
	e.Adapter = model.AdapterId(adapter)
	e.Scope = model.Scope(scope)
	e.Result = model.ReconcileResultKind(result)
	return &e, nil
}

const reconciliationLogColumns = `id, timestamp, operation, artifact_type, adapter, scope, path, result, error_message`

// ListReconciliationLogs returns the most recent limit reconciliation log
// rows, newest first.
func (s *Store) ListReconciliationLogs(ctx context.Context, limit int) ([]model.ReconciliationLogEntry, error) {
	var out []model.ReconciliationLogEntry
	err := s.withConn(func(db *sql.DB) error {
		query := `SELECT ` + reconciliationLogColumns + ` FROM reconciliation_logs ORDER BY id DESC`
		var rows *sql.Rows
		var err error
		if limit > 0 {
			rows, err = db.QueryContext(ctx, query+` LIMIT ?`, limit)
		} else {
			rows, err = db.QueryContext(ctx, query)
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "list reconciliation logs: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanReconciliationLog(rows)
			if err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan reconciliation log: %v", err)
			}
			out = append(out, *e)
		}
		return rows.Err()
	})
	return out, err
}

// LastReconciliationOpPerPath returns the most recent reconciliation log
// entry for each distinct path, keyed by path — the status projection uses
// this to know the last operation attempted against a given on-disk
// location without re-scanning the whole log table.
func (s *Store) LastReconciliationOpPerPath(ctx context.Context) (map[string]model.ReconciliationLogEntry, error) {
	out := map[string]model.ReconciliationLogEntry{}
	err := s.withConn(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT `+reconciliationLogColumns+` FROM reconciliation_logs
			WHERE id IN (SELECT MAX(id) FROM reconciliation_logs GROUP BY path)`)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "last reconciliation op per path: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanReconciliationLog(rows)
			if err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan reconciliation log: %v", err)
			}
			out[e.Path] = *e
		}
		return rows.Err()
	})
	return out, err
}
