// Package runner guards command and skill execution (spec §5): it
// rejects scripts/steps that exceed size limits or match a disallowed
// shell pattern, enforces per-invocation and per-step timeouts, redacts
// secrets out of captured output before it is ever persisted, and then
// delegates the actual process execution to an injected Runner so that
// sandboxing policy stays a caller concern, per spec §1.
package runner

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/mkern/rulesync/internal/catalog"
	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/redact"
	"github.com/mkern/rulesync/internal/rserr"
)

const (
	maxScriptLength = 20000
	maxStepLength   = 4000
	maxSkillSteps   = 10

	defaultCommandTimeout = 60 * time.Second
	defaultStepTimeout    = 60 * time.Second

	executionLogRetention = 500
)

// disallowedPatterns are the shell fragments spec §5 requires rejecting
// outright rather than attempting to sanitize.
var disallowedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf`),
	regexp.MustCompile(`del\s+/f`),
	regexp.MustCompile(`mkfs`),
	regexp.MustCompile(`shutdown`),
	regexp.MustCompile(`reboot`),
	regexp.MustCompile(`curl[^|\n]*\|`),
	regexp.MustCompile(`wget[^|\n]*\|`),
	regexp.MustCompile("`"),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile(`\beval\s`),
	regexp.MustCompile(`\bexec\s`),
	regexp.MustCompile(`<\(`),
	regexp.MustCompile(`<<`),
}

// findDisallowedPattern returns the first disallowed pattern matched in s,
// or "" if none match.
func findDisallowedPattern(s string) string {
	for _, p := range disallowedPatterns {
		if p.MatchString(s) {
			return p.String()
		}
	}
	return ""
}

// Process is the actual execution surface, injected so this package never
// has to make sandboxing decisions itself.
type Process interface {
	RunCommand(ctx context.Context, script string, args map[string]string) (stdout, stderr string, exitCode int, err error)
	RunStep(ctx context.Context, step string) (stdout, stderr string, exitCode int, err error)
}

// Guard validates and times out command/skill invocations, persisting a
// redacted execution log entry for each attempt.
type Guard struct {
	Store          *catalog.Store
	Process        Process
	CommandTimeout time.Duration
	StepTimeout    time.Duration
	logger         *log.Logger
	nowFunc        func() time.Time
}

// New builds a Guard with spec-default timeouts (60s each). logger may be
// nil, in which case log.Default() is used.
func New(store *catalog.Store, process Process, logger *log.Logger) *Guard {
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{
		Store: store, Process: process,
		CommandTimeout: defaultCommandTimeout, StepTimeout: defaultStepTimeout,
		logger: logger, nowFunc: time.Now,
	}
}

// StepResult is the outcome of one skill step.
type StepResult struct {
	Step  string
	Entry model.ExecutionLogEntry
}

func (g *Guard) appendLog(ctx context.Context, entry model.ExecutionLogEntry) {
	if _, err := g.Store.AppendExecutionLog(ctx, entry); err != nil {
		g.logger.Printf("[runner] failed to append execution log for %s: %v", entry.CommandName, err)
		return
	}
	if err := g.Store.TrimExecutionLogs(ctx, executionLogRetention); err != nil {
		g.logger.Printf("[runner] failed to trim execution logs: %v", err)
	}
}

// ExecuteCommand runs cmd's script under a hard timeout, rejecting it
// outright if it exceeds the max script length or matches a disallowed
// pattern, per spec §5.
func (g *Guard) ExecuteCommand(ctx context.Context, cmd model.Command, args map[string]string, trigger string) (model.ExecutionLogEntry, error) {
	if len(cmd.Script) > maxScriptLength {
		return model.ExecutionLogEntry{}, rserr.New(rserr.KindValidation, fmt.Sprintf("command script exceeds %d chars", maxScriptLength))
	}
	if pattern := findDisallowedPattern(cmd.Script); pattern != "" {
		return model.ExecutionLogEntry{}, rserr.New(rserr.KindValidation, fmt.Sprintf("command script matches disallowed pattern %q", pattern))
	}

	timeout := g.CommandTimeout
	if cmd.TimeoutSeconds != nil {
		timeout = time.Duration(*cmd.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := g.nowFunc()
	stdout, stderr, exitCode, runErr := g.Process.RunCommand(runCtx, cmd.Script, args)
	duration := g.nowFunc().Sub(start)

	failureClass := ""
	if runCtx.Err() == context.DeadlineExceeded {
		failureClass = "timeout"
	} else if runErr != nil {
		failureClass = "error"
	}

	redactedStdout, stdoutRedacted := redact.Redact(stdout)
	redactedStderr, stderrRedacted := redact.Redact(stderr)

	entry := model.ExecutionLogEntry{
		CommandID: cmd.ID, CommandName: cmd.Name,
		Stdout: redactedStdout, Stderr: redactedStderr, ExitCode: exitCode,
		DurationMS: duration.Milliseconds(), ExecutedAt: start,
		Trigger: trigger, FailureClass: failureClass,
		Redacted: stdoutRedacted || stderrRedacted, Attempt: 1,
	}
	g.appendLog(ctx, entry)

	if runErr != nil {
		return entry, rserr.Wrapf(rserr.KindIo, runErr, "run command %s: %v", cmd.Name, runErr)
	}
	return entry, nil
}

// ExecuteSkill runs each step in order, aborting the whole invocation if
// any step matches a disallowed pattern or the step/step-count caps are
// exceeded, per spec §5.
func (g *Guard) ExecuteSkill(ctx context.Context, skill model.Skill, steps []string, trigger string) ([]StepResult, error) {
	if len(steps) > maxSkillSteps {
		return nil, rserr.New(rserr.KindValidation, fmt.Sprintf("skill invocation exceeds %d steps", maxSkillSteps))
	}
	for _, step := range steps {
		if len(step) > maxStepLength {
			return nil, rserr.New(rserr.KindValidation, fmt.Sprintf("skill step exceeds %d chars", maxStepLength))
		}
		if pattern := findDisallowedPattern(step); pattern != "" {
			return nil, rserr.New(rserr.KindValidation, fmt.Sprintf("skill step matches disallowed pattern %q", pattern))
		}
	}

	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, g.StepTimeout)
		start := g.nowFunc()
		stdout, stderr, exitCode, runErr := g.Process.RunStep(stepCtx, step)
		duration := g.nowFunc().Sub(start)

		failureClass := ""
		if stepCtx.Err() == context.DeadlineExceeded {
			failureClass = "timeout"
		} else if runErr != nil {
			failureClass = "error"
		}
		cancel()

		redactedStdout, stdoutRedacted := redact.Redact(stdout)
		redactedStderr, stderrRedacted := redact.Redact(stderr)

		entry := model.ExecutionLogEntry{
			CommandID: skill.ID, CommandName: skill.Name,
			Stdout: redactedStdout, Stderr: redactedStderr, ExitCode: exitCode,
			DurationMS: duration.Milliseconds(), ExecutedAt: start,
			Trigger: trigger, FailureClass: failureClass,
			Redacted: stdoutRedacted || stderrRedacted, Attempt: 1,
		}
		g.appendLog(ctx, entry)
		results = append(results, StepResult{Step: step, Entry: entry})

		if runErr != nil {
			return results, rserr.Wrapf(rserr.KindIo, runErr, "run skill step for %s: %v", skill.Name, runErr)
		}
	}
	return results, nil
}
