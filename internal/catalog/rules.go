package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/rserr"
)

// RuleInput is the set of fields accepted by CreateRule / UpdateRule.
// Pointer/nil fields in UpdateRule mean "leave unchanged" (merge-over-existing
// semantics per spec §4.3).
type RuleInput struct {
	Name            *string
	Description     *string
	Content         *string
	Scope           *model.Scope
	TargetPaths     *[]string
	EnabledAdapters *[]model.AdapterId
	Enabled         *bool
}

func scanRule(row interface{ Scan(...any) error }) (*model.Rule, error) {
	var r model.Rule
	var scope, targetPaths, adapters string
	var createdAt, updatedAt int64
	var enabled int
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Content, &scope, &targetPaths, &adapters, &enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.Scope = model.Scope(scope)
	r.TargetPaths = unmarshalStrings(targetPaths)
	r.EnabledAdapters = unmarshalAdapters(adapters)
	r.Enabled = enabled != 0
	r.CreatedAt = fromUnix(createdAt)
	r.UpdatedAt = fromUnix(updatedAt)
	return &r, nil
}

const ruleColumns = `id, name, description, content, scope, target_paths, enabled_adapters, enabled, created_at, updated_at`

// ListRules returns every rule, ordered by catalog-insertion order.
func (s *Store) ListRules(ctx context.Context) ([]model.Rule, error) {
	var out []model.Rule
	err := s.withConn(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY rowid`)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "list rules: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRule(rows)
			if err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan rule: %v", err)
			}
			out = append(out, *r)
		}
		return rows.Err()
	})
	return out, err
}

// GetRuleByID returns one rule, or RuleNotFound.
func (s *Store) GetRuleByID(ctx context.Context, id string) (*model.Rule, error) {
	var out *model.Rule
	err := s.withConn(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
		r, err := scanRule(row)
		if err == sql.ErrNoRows {
			return rserr.NotFound(rserr.KindRuleNotFound, id)
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "get rule: %v", err)
		}
		out = r
		return nil
	})
	return out, err
}

// RuleExistsWithName reports whether a rule with the given name (case
// insensitive) already exists.
func (s *Store) RuleExistsWithName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.withConn(func(db *sql.DB) error {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules WHERE lower(name) = lower(?)`, name).Scan(&count)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "check rule name: %v", err)
		}
		exists = count > 0
		return nil
	})
	return exists, err
}

func validateRuleInvariants(name, content string, scope model.Scope, targetPaths []string, adapters []model.AdapterId, enabled bool) error {
	if strings.TrimSpace(name) == "" {
		return rserr.New(rserr.KindInvalidInput, "rule name must not be empty")
	}
	if len(name) > 200 {
		return rserr.New(rserr.KindInvalidInput, "rule name exceeds 200 characters")
	}
	if len(content) > 1_000_000 {
		return rserr.New(rserr.KindInvalidInput, "rule content exceeds 1,000,000 characters")
	}
	if enabled && len(adapters) == 0 {
		return rserr.New(rserr.KindValidation, "at least one adapter must be enabled for an active rule")
	}
	if scope == model.ScopeLocal {
		hasAbsolute := false
		for _, p := range targetPaths {
			if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
				hasAbsolute = true
				break
			}
		}
		if !hasAbsolute {
			return rserr.New(rserr.KindValidation, "local-scope rules require at least one absolute target path")
		}
	}
	return nil
}

// CreateRule inserts a new rule and returns it with its minted id and
// timestamps populated.
func (s *Store) CreateRule(ctx context.Context, in RuleInput) (*model.Rule, error) {
	r := model.Rule{ID: uuid.NewString()}
	if in.Name != nil {
		r.Name = *in.Name
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Content != nil {
		r.Content = *in.Content
	}
	if in.Scope != nil {
		r.Scope = *in.Scope
	} else {
		r.Scope = model.ScopeGlobal
	}
	if in.TargetPaths != nil {
		r.TargetPaths = *in.TargetPaths
	}
	if in.EnabledAdapters != nil {
		r.EnabledAdapters = *in.EnabledAdapters
	}
	if in.Enabled != nil {
		r.Enabled = *in.Enabled
	} else {
		r.Enabled = true
	}

	if err := validateRuleInvariants(r.Name, r.Content, r.Scope, r.TargetPaths, r.EnabledAdapters, r.Enabled); err != nil {
		return nil, err
	}

	now := nowFunc()
	r.CreatedAt, r.UpdatedAt = now, now

	targetPathsJSON, err := marshalJSON(r.TargetPaths)
	if err != nil {
		return nil, err
	}
	adaptersJSON, err := marshalAdapters(r.EnabledAdapters)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, r.Description, r.Content, string(r.Scope), targetPathsJSON, adaptersJSON, boolToInt(r.Enabled), toUnix(r.CreatedAt), toUnix(r.UpdatedAt))
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "insert rule: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRule merges non-nil fields of in over the existing rule with id.
func (s *Store) UpdateRule(ctx context.Context, id string, in RuleInput) (*model.Rule, error) {
	existing, err := s.GetRuleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		existing.Name = *in.Name
	}
	if in.Description != nil {
		existing.Description = *in.Description
	}
	if in.Content != nil {
		existing.Content = *in.Content
	}
	if in.Scope != nil {
		existing.Scope = *in.Scope
	}
	if in.TargetPaths != nil {
		existing.TargetPaths = *in.TargetPaths
	}
	if in.EnabledAdapters != nil {
		existing.EnabledAdapters = *in.EnabledAdapters
	}
	if in.Enabled != nil {
		existing.Enabled = *in.Enabled
	}

	if err := validateRuleInvariants(existing.Name, existing.Content, existing.Scope, existing.TargetPaths, existing.EnabledAdapters, existing.Enabled); err != nil {
		return nil, err
	}

	existing.UpdatedAt = nowFunc()

	targetPathsJSON, err := marshalJSON(existing.TargetPaths)
	if err != nil {
		return nil, err
	}
	adaptersJSON, err := marshalAdapters(existing.EnabledAdapters)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE rules SET name=?, description=?, content=?, scope=?, target_paths=?, enabled_adapters=?, enabled=?, updated_at=? WHERE id=?`,
			existing.Name, existing.Description, existing.Content, string(existing.Scope), targetPathsJSON, adaptersJSON, boolToInt(existing.Enabled), toUnix(existing.UpdatedAt), id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "update rule: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindRuleNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// DeleteRule removes a rule by id.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "delete rule: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindRuleNotFound, id)
		}
		_, _ = tx.ExecContext(ctx, `DELETE FROM rule_file_index WHERE rule_id = ?`, id)
		return nil
	})
}

// ToggleRuleEnabled flips the enabled flag for a rule.
func (s *Store) ToggleRuleEnabled(ctx context.Context, id string, enabled bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE rules SET enabled = ?, updated_at = ? WHERE id = ?`, boolToInt(enabled), toUnix(nowFunc()), id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "toggle rule: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindRuleNotFound, id)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
