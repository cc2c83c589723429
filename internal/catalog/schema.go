package catalog

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the linear version stamp the catalog migrates to.
// Each step below adds exactly one table, index, or column, and every step
// must be safe to re-run (checked against the actual column list, never a
// blind re-add), per spec §4.3.
const CurrentSchemaVersion = 15

type migrationStep func(tx *sql.Tx) error

var migrations = []migrationStep{
	1: createSchemaMeta,
	2: createRules,
	3: createCommands,
	4: createSkills,
	5: createSettings,
	6: createExecutionLogs,
	7: createSyncLogs,
	8: createReconciliationLogs,
	9: createRuleFileIndex,
	10: func(tx *sql.Tx) error { return createIndex(tx, "idx_rules_name", "rules", "name") },
	11: func(tx *sql.Tx) error { return createIndex(tx, "idx_commands_name", "commands", "name") },
	12: func(tx *sql.Tx) error { return createIndex(tx, "idx_skills_name", "skills", "name") },
	13: func(tx *sql.Tx) error { return addColumnIfMissing(tx, "commands", "timeout_seconds", "INTEGER") },
	14: func(tx *sql.Tx) error { return addColumnIfMissing(tx, "commands", "max_retries", "INTEGER") },
	15: func(tx *sql.Tx) error {
		return createIndex(tx, "idx_reconciliation_logs_path", "reconciliation_logs", "path")
	},
}

func createSchemaMeta(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	)`)
	return err
}

func createRules(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL,
		target_paths TEXT NOT NULL DEFAULT '[]',
		enabled_adapters TEXT NOT NULL DEFAULT '[]',
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func createCommands(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS commands (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		script TEXT NOT NULL DEFAULT '',
		arguments TEXT NOT NULL DEFAULT '[]',
		expose_via_rpc INTEGER NOT NULL DEFAULT 0,
		placeholder INTEGER NOT NULL DEFAULT 0,
		generate_slash_commands INTEGER NOT NULL DEFAULT 0,
		slash_command_adapters TEXT NOT NULL DEFAULT '[]',
		target_paths TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func createSkills(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		instructions TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL,
		input_schema TEXT NOT NULL DEFAULT '[]',
		enabled INTEGER NOT NULL DEFAULT 1,
		directory_path TEXT NOT NULL DEFAULT '',
		entry_point TEXT NOT NULL DEFAULT '',
		target_adapters TEXT NOT NULL DEFAULT '[]',
		target_paths TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func createSettings(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

func createExecutionLogs(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS execution_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		command_id TEXT NOT NULL DEFAULT '',
		command_name TEXT NOT NULL DEFAULT '',
		arguments_json TEXT NOT NULL DEFAULT '{}',
		stdout TEXT NOT NULL DEFAULT '',
		stderr TEXT NOT NULL DEFAULT '',
		exit_code INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		executed_at INTEGER NOT NULL,
		trigger_source TEXT NOT NULL DEFAULT '',
		failure_class TEXT NOT NULL DEFAULT '',
		adapter_context TEXT NOT NULL DEFAULT '',
		redacted INTEGER NOT NULL DEFAULT 0,
		attempt INTEGER NOT NULL DEFAULT 1
	)`)
	return err
}

func createSyncLogs(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS sync_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		files_written INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		trigger_source TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

func createReconciliationLogs(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS reconciliation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		operation TEXT NOT NULL,
		artifact_type TEXT NOT NULL DEFAULT '',
		adapter TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		result TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

func createRuleFileIndex(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS rule_file_index (
		rule_id TEXT PRIMARY KEY,
		path TEXT NOT NULL
	)`)
	return err
}

func createIndex(tx *sql.Tx, name, table, column string) error {
	_, err := tx.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`, name, table, column))
	return err
}

// addColumnIfMissing adds column to table with the given SQL type, checking
// the real column list first so the migration is safe to re-run — spec
// §4.3 requires migrations never blindly re-add a column.
func addColumnIfMissing(tx *sql.Tx, table, column, sqlType string) error {
	rows, err := tx.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = tx.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, sqlType))
	return err
}

// migrate runs every migration step from the database's current version up
// to CurrentSchemaVersion, inside a single transaction.
func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if err := createSchemaMeta(tx); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}

	var version int
	err = tx.QueryRow(`SELECT version FROM schema_meta WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_meta (id, version) VALUES (1, 0)`); err != nil {
			return fmt.Errorf("seed schema_meta: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := version + 1; v <= CurrentSchemaVersion; v++ {
		step := migrations[v]
		if step == nil {
			continue
		}
		if err := step(tx); err != nil {
			return fmt.Errorf("migration step %d: %w", v, err)
		}
	}

	if _, err := tx.Exec(`UPDATE schema_meta SET version = ? WHERE id = 1`, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	return tx.Commit()
}
