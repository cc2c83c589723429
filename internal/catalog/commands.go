package catalog

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/rserr"
)

// CommandInput is the mergeable field set for CreateCommand / UpdateCommand.
type CommandInput struct {
	Name                  *string
	Description           *string
	Script                *string
	Arguments             *[]model.CommandArgument
	ExposeViaRPC          *bool
	Placeholder           *bool
	GenerateSlashCommands *bool
	SlashCommandAdapters  *[]model.AdapterId
	TargetPaths           *[]string
	TimeoutSeconds        **int
	MaxRetries            **int
}

var argNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func validateArguments(args []model.CommandArgument) error {
	seen := map[string]bool{}
	for _, a := range args {
		if !argNamePattern.MatchString(a.Name) {
			return rserr.New(rserr.KindValidation, "argument name must match [A-Za-z0-9_]+: "+a.Name)
		}
		if seen[a.Name] {
			return rserr.New(rserr.KindValidation, "duplicate argument name: "+a.Name)
		}
		seen[a.Name] = true
		if a.ArgType == model.ArgEnum {
			if len(a.Options) == 0 {
				return rserr.New(rserr.KindValidation, "enum argument "+a.Name+" must list options")
			}
			if a.Default != nil {
				found := false
				for _, o := range a.Options {
					if o == *a.Default {
						found = true
						break
					}
				}
				if !found {
					return rserr.New(rserr.KindValidation, "enum argument "+a.Name+" default is not a listed option")
				}
			}
		}
	}
	return nil
}

func validateCommandInvariants(name, script string, args []model.CommandArgument) error {
	if strings.TrimSpace(name) == "" {
		return rserr.New(rserr.KindInvalidInput, "command name must not be empty")
	}
	if len(script) > 20_000 {
		return rserr.New(rserr.KindInvalidInput, "command script exceeds 20,000 characters")
	}
	return validateArguments(args)
}

const commandColumns = `id, name, description, script, arguments, expose_via_rpc, placeholder, generate_slash_commands, slash_command_adapters, target_paths, timeout_seconds, max_retries, created_at, updated_at`

func scanCommand(row interface{ Scan(...any) error }) (*model.Command, error) {
	var c model.Command
	var args, slashAdapters, targetPaths string
	var expose, placeholder, genSlash int
	var timeout, retries sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Script, &args, &expose, &placeholder, &genSlash, &slashAdapters, &targetPaths, &timeout, &retries, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Arguments = unmarshalArguments(args)
	c.ExposeViaRPC = expose != 0
	c.Placeholder = placeholder != 0
	c.GenerateSlashCommands = genSlash != 0
	c.SlashCommandAdapters = unmarshalAdapters(slashAdapters)
	c.TargetPaths = unmarshalStrings(targetPaths)
	if timeout.Valid {
		v := int(timeout.Int64)
		c.TimeoutSeconds = &v
	}
	if retries.Valid {
		v := int(retries.Int64)
		c.MaxRetries = &v
	}
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return &c, nil
}

// ListCommands returns every command, ordered by catalog-insertion order.
func (s *Store) ListCommands(ctx context.Context) ([]model.Command, error) {
	var out []model.Command
	err := s.withConn(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT `+commandColumns+` FROM commands ORDER BY rowid`)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "list commands: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCommand(rows)
			if err != nil {
				return rserr.Wrapf(rserr.KindDatabase, err, "scan command: %v", err)
			}
			out = append(out, *c)
		}
		return rows.Err()
	})
	return out, err
}

// GetCommandByID returns one command, or CommandNotFound.
func (s *Store) GetCommandByID(ctx context.Context, id string) (*model.Command, error) {
	var out *model.Command
	err := s.withConn(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
		c, err := scanCommand(row)
		if err == sql.ErrNoRows {
			return rserr.NotFound(rserr.KindCommandNotFound, id)
		}
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "get command: %v", err)
		}
		out = c
		return nil
	})
	return out, err
}

// CommandExistsWithName reports whether a command with the given name
// (case insensitive) already exists.
func (s *Store) CommandExistsWithName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.withConn(func(db *sql.DB) error {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commands WHERE lower(name) = lower(?)`, name).Scan(&count)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "check command name: %v", err)
		}
		exists = count > 0
		return nil
	})
	return exists, err
}

func mergeIntPtr(existing **int, in **int) {
	if in != nil {
		*existing = *in
	}
}

// CreateCommand inserts a new command.
func (s *Store) CreateCommand(ctx context.Context, in CommandInput) (*model.Command, error) {
	c := model.Command{ID: uuid.NewString()}
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.Script != nil {
		c.Script = *in.Script
	}
	if in.Arguments != nil {
		c.Arguments = *in.Arguments
	}
	if in.ExposeViaRPC != nil {
		c.ExposeViaRPC = *in.ExposeViaRPC
	}
	if in.Placeholder != nil {
		c.Placeholder = *in.Placeholder
	}
	if in.GenerateSlashCommands != nil {
		c.GenerateSlashCommands = *in.GenerateSlashCommands
	}
	if in.SlashCommandAdapters != nil {
		c.SlashCommandAdapters = *in.SlashCommandAdapters
	}
	if in.TargetPaths != nil {
		c.TargetPaths = *in.TargetPaths
	}
	mergeIntPtr(&c.TimeoutSeconds, in.TimeoutSeconds)
	mergeIntPtr(&c.MaxRetries, in.MaxRetries)

	if err := validateCommandInvariants(c.Name, c.Script, c.Arguments); err != nil {
		return nil, err
	}

	now := nowFunc()
	c.CreatedAt, c.UpdatedAt = now, now

	argsJSON, err := marshalArguments(c.Arguments)
	if err != nil {
		return nil, err
	}
	slashJSON, err := marshalAdapters(c.SlashCommandAdapters)
	if err != nil {
		return nil, err
	}
	pathsJSON, err := marshalJSON(c.TargetPaths)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO commands (`+commandColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			c.ID, c.Name, c.Description, c.Script, argsJSON, boolToInt(c.ExposeViaRPC), boolToInt(c.Placeholder), boolToInt(c.GenerateSlashCommands),
			slashJSON, pathsJSON, nullableInt(c.TimeoutSeconds), nullableInt(c.MaxRetries), toUnix(c.CreatedAt), toUnix(c.UpdatedAt))
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "insert command: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCommand merges non-nil fields of in over the existing command.
func (s *Store) UpdateCommand(ctx context.Context, id string, in CommandInput) (*model.Command, error) {
	existing, err := s.GetCommandByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		existing.Name = *in.Name
	}
	if in.Description != nil {
		existing.Description = *in.Description
	}
	if in.Script != nil {
		existing.Script = *in.Script
	}
	if in.Arguments != nil {
		existing.Arguments = *in.Arguments
	}
	if in.ExposeViaRPC != nil {
		existing.ExposeViaRPC = *in.ExposeViaRPC
	}
	if in.Placeholder != nil {
		existing.Placeholder = *in.Placeholder
	}
	if in.GenerateSlashCommands != nil {
		existing.GenerateSlashCommands = *in.GenerateSlashCommands
	}
	if in.SlashCommandAdapters != nil {
		existing.SlashCommandAdapters = *in.SlashCommandAdapters
	}
	if in.TargetPaths != nil {
		existing.TargetPaths = *in.TargetPaths
	}
	mergeIntPtr(&existing.TimeoutSeconds, in.TimeoutSeconds)
	mergeIntPtr(&existing.MaxRetries, in.MaxRetries)

	if err := validateCommandInvariants(existing.Name, existing.Script, existing.Arguments); err != nil {
		return nil, err
	}

	existing.UpdatedAt = nowFunc()

	argsJSON, err := marshalArguments(existing.Arguments)
	if err != nil {
		return nil, err
	}
	slashJSON, err := marshalAdapters(existing.SlashCommandAdapters)
	if err != nil {
		return nil, err
	}
	pathsJSON, err := marshalJSON(existing.TargetPaths)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE commands SET name=?, description=?, script=?, arguments=?, expose_via_rpc=?, placeholder=?, generate_slash_commands=?, slash_command_adapters=?, target_paths=?, timeout_seconds=?, max_retries=?, updated_at=? WHERE id=?`,
			existing.Name, existing.Description, existing.Script, argsJSON, boolToInt(existing.ExposeViaRPC), boolToInt(existing.Placeholder), boolToInt(existing.GenerateSlashCommands),
			slashJSON, pathsJSON, nullableInt(existing.TimeoutSeconds), nullableInt(existing.MaxRetries), toUnix(existing.UpdatedAt), id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "update command: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindCommandNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// DeleteCommand removes a command by id.
func (s *Store) DeleteCommand(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM commands WHERE id = ?`, id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "delete command: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindCommandNotFound, id)
		}
		return nil
	})
}

// ToggleCommandEnabled flips placeholder-off/on status via the shared
// enabled-toggle contract (commands use Placeholder as their inactive
// marker since they have no standalone enabled column in the schema).
func (s *Store) ToggleCommandEnabled(ctx context.Context, id string, enabled bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE commands SET placeholder = ?, updated_at = ? WHERE id = ?`, boolToInt(!enabled), toUnix(nowFunc()), id)
		if err != nil {
			return rserr.Wrapf(rserr.KindDatabase, err, "toggle command: %v", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rserr.NotFound(rserr.KindCommandNotFound, id)
		}
		return nil
	})
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
