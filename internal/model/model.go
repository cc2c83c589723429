// Package model holds the shared domain types for rulesync: rules,
// commands, skills, and the log rows the catalog appends to.
package model

import "time"

// AdapterId identifies one of the supported AI-assistant tools. The set is
// closed; a new adapter is a registry edit, not a new type.
type AdapterId string

const (
	AdapterAntigravity AdapterId = "antigravity"
	AdapterGemini      AdapterId = "gemini"
	AdapterOpencode    AdapterId = "opencode"
	AdapterCline       AdapterId = "cline"
	AdapterClaudeCode  AdapterId = "claude-code"
	AdapterCodex       AdapterId = "codex"
	AdapterKilo        AdapterId = "kilo"
	AdapterCursor      AdapterId = "cursor"
	AdapterWindsurf    AdapterId = "windsurf"
	AdapterRoocode     AdapterId = "roocode"
)

// AllAdapters lists every closed-set adapter id, in a stable order.
var AllAdapters = []AdapterId{
	AdapterAntigravity, AdapterGemini, AdapterOpencode, AdapterCline,
	AdapterClaudeCode, AdapterCodex, AdapterKilo, AdapterCursor,
	AdapterWindsurf, AdapterRoocode,
}

// Scope is where an artifact is projected: under the user's home, or under
// one or more repository roots.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
)

// ArtifactType is one of the four kinds of file rulesync projects onto disk.
type ArtifactType string

const (
	ArtifactRule          ArtifactType = "rule"
	ArtifactCommandStub   ArtifactType = "command_stub"
	ArtifactSlashCommand  ArtifactType = "slash_command"
	ArtifactSkill         ArtifactType = "skill"
)

// ArgType is the type of a CommandArgument or skill input-schema parameter.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgEnum    ArgType = "enum"
	ArgArray   ArgType = "array"
	ArgObject  ArgType = "object"
)

// CommandArgument describes one typed argument of a Command, or one
// parameter of a Skill's input schema (the two share a shape per spec).
type CommandArgument struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ArgType     ArgType  `json:"arg_type"`
	Required    bool     `json:"required"`
	Default     *string  `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Rule is a prose directive emitted to one or more adapter config files.
type Rule struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Content         string      `json:"content"`
	Scope           Scope       `json:"scope"`
	TargetPaths     []string    `json:"target_paths,omitempty"`
	EnabledAdapters []AdapterId `json:"enabled_adapters"`
	Enabled         bool        `json:"enabled"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Command is an invokable shell fragment with typed arguments.
type Command struct {
	ID                    string             `json:"id"`
	Name                  string             `json:"name"`
	Description           string             `json:"description"`
	Script                string             `json:"script"`
	Arguments             []CommandArgument  `json:"arguments"`
	ExposeViaRPC          bool               `json:"expose_via_rpc"`
	Placeholder           bool               `json:"placeholder"`
	GenerateSlashCommands bool               `json:"generate_slash_commands"`
	SlashCommandAdapters  []AdapterId        `json:"slash_command_adapters,omitempty"`
	TargetPaths           []string           `json:"target_paths,omitempty"`
	TimeoutSeconds        *int               `json:"timeout_seconds,omitempty"`
	MaxRetries            *int               `json:"max_retries,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Skill is a named multi-step procedure with a typed parameter schema and an
// on-disk working directory.
type Skill struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Instructions   string            `json:"instructions"`
	Scope          Scope             `json:"scope"`
	InputSchema    []CommandArgument `json:"input_schema,omitempty"`
	Enabled        bool              `json:"enabled"`
	DirectoryPath  string            `json:"directory_path"`
	EntryPoint     string            `json:"entry_point"`
	TargetAdapters []AdapterId       `json:"target_adapters,omitempty"`
	TargetPaths    []string          `json:"target_paths,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ReconcileOp is one of the four plan operations.
type ReconcileOp string

const (
	OpCreate ReconcileOp = "create"
	OpUpdate ReconcileOp = "update"
	OpRemove ReconcileOp = "remove"
	OpCheck  ReconcileOp = "check"
)

// ReconcileResultKind is the outcome of one executed plan item.
type ReconcileResultKind string

const (
	ResultSuccess ReconcileResultKind = "success"
	ResultFailed  ReconcileResultKind = "failed"
	ResultSkipped ReconcileResultKind = "skipped"
)

// SyncLogEntry records one end-to-end reconcile invocation.
type SyncLogEntry struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	FilesWritten int       `json:"files_written"`
	Status       string    `json:"status"`
	Trigger      string    `json:"trigger"`
}

// ExecutionLogEntry records one command or skill run.
type ExecutionLogEntry struct {
	ID            int64     `json:"id"`
	CommandID     string    `json:"command_id"`
	CommandName   string    `json:"command_name"`
	ArgumentsJSON string    `json:"arguments_json"`
	Stdout        string    `json:"stdout"`
	Stderr        string    `json:"stderr"`
	ExitCode      int       `json:"exit_code"`
	DurationMS    int64     `json:"duration_ms"`
	ExecutedAt    time.Time `json:"executed_at"`
	Trigger       string    `json:"trigger"`
	FailureClass  string    `json:"failure_class,omitempty"`
	AdapterContext string   `json:"adapter_context,omitempty"`
	Redacted      bool      `json:"redacted"`
	Attempt       int       `json:"attempt"`
}

// ReconciliationLogEntry records one plan operation actually executed.
type ReconciliationLogEntry struct {
	ID           int64               `json:"id"`
	Timestamp    time.Time           `json:"timestamp"`
	Operation    ReconcileOp         `json:"operation"`
	ArtifactType ArtifactType        `json:"artifact_type,omitempty"`
	Adapter      AdapterId           `json:"adapter,omitempty"`
	Scope        Scope               `json:"scope,omitempty"`
	Path         string              `json:"path"`
	Result       ReconcileResultKind `json:"result"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// SyncStatus is the projected sync state of one (artifact, adapter, scope).
type SyncStatus string

const (
	StatusSynced      SyncStatus = "synced"
	StatusOutOfDate   SyncStatus = "out_of_date"
	StatusMissing     SyncStatus = "missing"
	StatusConflicted  SyncStatus = "conflicted"
	StatusUnsupported SyncStatus = "unsupported"
	StatusError       SyncStatus = "error"
)
