package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/pathresolver"
	"github.com/mkern/rulesync/internal/rserr"
)

// SkillInput is the mergeable field set for CreateSkill / UpdateSkill.
type SkillInput struct {
	Name           *string
	Description    *string
	Instructions   *string
	Scope          *model.Scope
	InputSchema    *[]model.CommandArgument
	Enabled        *bool
	DirectoryPath  *string
	EntryPoint     *string
	TargetAdapters *[]model.AdapterId
	TargetPaths    *[]string
}

func validateSkillInvariants(directoryPath, entryPoint string, home string) error {
	if strings.TrimSpace(directoryPath) == "" {
		return rserr.New(rserr.KindInvalidInput, "skill directory_path must not be empty")
	}
	if home != "" {
		r := pathresolver.New(home)
		if err := r.ValidateTargetPath(directoryPath); err != nil {
			return rserr.Wrapf(rserr.KindValidation, err, "skill directory must lie under home: %v", err)
		}
	}
	if err := pathresolver.ValidateEntryPoint(entryPoint); err != nil {
		return rserr.Wrapf(rserr.KindValidation, err, "%v", err)
	}
	return nil
}

const skillColumns = `id, name, description, instructions, scope, input_schema, enabled, directory_path, entry_point, target_adapters, target_paths, created_at, updated_at`

func scanSkill(row interface{ Scan(...any) error }) (*model.Skill, error) {
	var sk model.Skill
	var scope, inputSchema, targetAdapters, targetPaths string
	var enabled int
	var createdAt, updatedAt int64
	if err := row.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Instructions, &scope, &inputSchema, &enabled, &sk.DirectoryPath, &sk.EntryPoint, &targetAdapters, &targetPaths, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sk.Scope = model.Scope(scope)
	sk.InputSchema = unmarshalArguments(inputSchema)
	sk.Enabled = enabled != 0
	sk.TargetAdapters = unmarshalAdapters(targetAdapters)
	sk.TargetPaths = unmarshalStrings(targetPaths)
	sk.CreatedAt = fromUnix(createdAt)
	sk.UpdatedAt = fromUnix(updatedAt)
	return &sk, nil
}

// ListSkills returns every skill, ordered by catalog-insertion order.
func (s *Store) ListSkills(ctx context.Context) ([]model.Skill, error) {
	var out []model.Skill
	err := s.withConn(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT `+skillColumns+` FROM skills ORDER BY rowid`)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "list skills: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			sk, err := scanSkill(rows)
			if err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan skill: %v", err)
			}
			out = append(out, *sk)
		}
		return rows.Err()
	})
	return out, err
}

// GetSkillByID returns one skill, or SkillNotFound.
func (s *Store) GetSkillByID(ctx context.Context, id string) (*model.Skill, error) {
	var out *model.Skill
	err := s.withConn(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `SELECT `+skillColumns+` FROM skills WHERE id = ?`, id)
		sk, err := scanSkill(row)
		if err == sql.ErrNoRows {
			return rserr.NotFound(rserr.KindSkillNotFound, id)
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "get skill: %v", err)
		}
		out = sk
		return nil
	})
	return out, err
}

// SkillExistsWithName reports whether a skill with the given name (case
// insensitive) already exists.
func (s *Store) SkillExistsWithName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.withConn(func(db *sql.DB) error {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM skills WHERE lower(name) = lower(?)`, name).Scan(&count)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "check skill name: %v", err)
		}
		exists = count > 0
		return nil
	})
	return exists, err
}

// CreateSkill inserts a new skill. home, when non-empty, is used to validate
// directory_path lies under the user's home (spec §3's skill invariant);
// pass "" to skip that check (e.g. when importing before home is known).
func (s *Store) CreateSkill(ctx context.Context, in SkillInput, home string) (*model.Skill, error) {
	sk := model.Skill{ID: uuid.NewString()}
	if in.Name != nil {
		sk.Name = *in.Name
	}
	if in.Description != nil {
		sk.Description = *in.Description
	}
	if in.Instructions != nil {
		sk.Instructions = *in.Instructions
	}
	if in.Scope != nil {
		sk.Scope = *in.Scope
	} else {
		sk.Scope = model.ScopeGlobal
	}
	if in.InputSchema != nil {
		sk.InputSchema = *in.InputSchema
	}
	if in.Enabled != nil {
		sk.Enabled = *in.Enabled
	} else {
		sk.Enabled = true
	}
	if in.DirectoryPath != nil {
		sk.DirectoryPath = *in.DirectoryPath
	}
	if in.EntryPoint != nil {
		sk.EntryPoint = *in.EntryPoint
	}
	if in.TargetAdapters != nil {
		sk.TargetAdapters = *in.TargetAdapters
	}
	if in.TargetPaths != nil {
		sk.TargetPaths = *in.TargetPaths
	}

	if err := validateSkillInvariants(sk.DirectoryPath, sk.EntryPoint, home); err != nil {
		return nil, err
	}

	now := nowFunc()
	sk.CreatedAt, sk.UpdatedAt = now, now

	inputJSON, err := marshalArguments(sk.InputSchema)
	if err != nil {
		return nil, err
	}
	targetAdaptersJSON, err := marshalAdapters(sk.TargetAdapters)
	if err != nil {
		return nil, err
	}
	targetPathsJSON, err := marshalJSON(sk.TargetPaths)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO skills (`+skillColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			sk.ID, sk.Name, sk.Description, sk.Instructions, string(sk.Scope), inputJSON, boolToInt(sk.Enabled),
			sk.DirectoryPath, sk.EntryPoint, targetAdaptersJSON, targetPathsJSON, toUnix(sk.CreatedAt), toUnix(sk.UpdatedAt))
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "insert skill: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sk, nil
}

// UpdateSkill merges non-nil fields of in over the existing skill.
func (s *Store) UpdateSkill(ctx context.Context, id string, in SkillInput, home string) (*model.Skill, error) {
	existing, err := s.GetSkillByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		existing.Name = *in.Name
	}
	if in.Description != nil {
		existing.Description = *in.Description
	}
	if in.Instructions != nil {
		existing.Instructions = *in.Instructions
	}
	if in.Scope != nil {
		existing.Scope = *in.Scope
	}
	if in.InputSchema != nil {
		existing.InputSchema = *in.InputSchema
	}
	if in.Enabled != nil {
		existing.Enabled = *in.Enabled
	}
	if in.DirectoryPath != nil {
		existing.DirectoryPath = *in.DirectoryPath
	}
	if in.EntryPoint != nil {
		existing.EntryPoint = *in.EntryPoint
	}
	if in.TargetAdapters != nil {
		existing.TargetAdapters = *in.TargetAdapters
	}
	if in.TargetPaths != nil {
		existing.TargetPaths = *in.TargetPaths
	}

	if err := validateSkillInvariants(existing.DirectoryPath, existing.EntryPoint, home); err != nil {
		return nil, err
	}

	existing.UpdatedAt = nowFunc()

	inputJSON, err := marshalArguments(existing.InputSchema)
	if err != nil {
		return nil, err
	}
	targetAdaptersJSON, err := marshalAdapters(existing.TargetAdapters)
	if err != nil {
		return nil, err
	}
	targetPathsJSON, err := marshalJSON(existing.TargetPaths)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE skills SET name=?, description=?, instructions=?, scope=?, input_schema=?, enabled=?, directory_path=?, entry_point=?, target_adapters=?, target_paths=?, updated_at=? WHERE id=?`,
			existing.Name, existing.Description, existing.Instructions, string(existing.Scope), inputJSON, boolToInt(existing.Enabled),
			existing.DirectoryPath, existing.EntryPoint, targetAdaptersJSON, targetPathsJSON, toUnix(existing.UpdatedAt), id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "update skill: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindSkillNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// DeleteSkill removes a skill by id.
func (s *Store) DeleteSkill(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "delete skill: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindSkillNotFound, id)
		}
		return nil
	})
}

// ToggleSkillEnabled flips the enabled flag for a skill.
func (s *Store) ToggleSkillEnabled(ctx context.Context, id string, enabled bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE skills SET enabled = ?, updated_at = ? WHERE id = ?`, boolToInt(enabled), toUnix(nowFunc()), id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "toggle skill: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindSkillNotFound, id)
		}
		return nil
	})
}
