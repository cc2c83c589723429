package catalog

import (
	"context"
	"database/sql"

	"github.com/mkern/rulesync/internal/rserr"
)

// SetRuleFileIndex records the on-disk path the reconciler last wrote a
// global-scope rule's markdown file to, so a later rename or removal can
// find the stale file even after the rule's name has changed.
func (s *Store) SetRuleFileIndex(ctx context.Context, ruleID, path string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO rule_file_index (rule_id, path) VALUES (?, ?)
			ON CONFLICT(rule_id) DO UPDATE SET path = excluded.path`, ruleID, path)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "set rule file index: %v", err)
		}
		return nil
	})
}

// GetRuleFileIndex returns the last-recorded path for ruleID, or "" if none.
func (s *Store) GetRuleFileIndex(ctx context.Context, ruleID string) (string, error) {
	var path string
	err := s.withConn(func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT path FROM rule_file_index WHERE rule_id = ?`, ruleID).Scan(&path)
		if err == sql.ErrNoRows {
			path = ""
			return nil
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "get rule file index: %v", err)
		}
		return nil
	})
	return path, err
}

// AllRuleFileIndex returns the full rule_id -> path map, for a reconcile
// pass that needs to detect every previously-written path still on disk.
func (s *Store) AllRuleFileIndex(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := s.withConn(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT rule_id, path FROM rule_file_index`)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "list rule file index: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id, path string
			if err := rows.Scan(&id, &path); err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan rule file index: %v", err)
			}
			out[id] = path
		}
		return rows.Err()
	})
	return out, err
}

// DeleteRuleFileIndex removes the recorded path for ruleID.
func (s *Store) DeleteRuleFileIndex(ctx context.Context, ruleID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM rule_file_index WHERE rule_id = ?`, ruleID)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "delete rule file index: %v", err)
		}
		return nil
	})
}
