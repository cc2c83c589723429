package catalog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mkern/rulesync/internal/rserr"
)

// GetSetting returns the raw string value stored under key, or "" if unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withConn(func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			value = ""
			return nil
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "get setting %s: %v", key, err)
		}
		return nil
	})
	return value, err
}

// SetSetting upserts a raw string value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "set setting %s: %v", key, err)
		}
		return nil
	})
}

// GetSettingStringArray reads key as a JSON string array, returning nil if
// unset or unparseable.
func (s *Store) GetSettingStringArray(ctx context.Context, key string) ([]string, error) {
	raw, err := s.GetSetting(ctx, key)
	if err != nil || raw == "" {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, nil
	}
	return out, nil
}

// MergeSettingStringArrayUnique appends values to the string array stored
// under key, de-duplicating while preserving first-seen order — used for
// settings like a list of import source identities already applied.
func (s *Store) MergeSettingStringArrayUnique(ctx context.Context, key string, values ...string) error {
	existing, err := s.GetSettingStringArray(ctx, key)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	merged := make([]string, 0, len(existing)+len(values))
	for _, v := range existing {
		if !seen[v] {
			seen[v] = true
			merged = append(merged, v)
		}
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			merged = append(merged, v)
		}
	}
	raw, err := marshalJSON(merged)
	if err != nil {
		return err
	}
	return s.SetSetting(ctx, key, raw)
}
