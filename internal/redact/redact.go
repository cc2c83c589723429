// Package redact masks secrets in captured command/skill stdout and stderr
// before they reach the execution log, per spec §4.8. The pipeline is a
// fixed, ordered list of patterns — no configuration, no plugin points.
package redact

import "regexp"

const replacement = "[REDACTED]"

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{10,}`),
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*['"]?[A-Za-z0-9_-]{20,}['"]?`),
	regexp.MustCompile(`A(KIA|SIA)[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`),
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)password\s*=\s*[^;\s]+`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]+`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|pwd)\s*[:=]\s*['"]?\S{16,}['"]?`),
}

// Redact applies the fixed pattern pipeline to text, returning the masked
// text and whether any pattern matched. The bool is persisted verbatim on
// the execution log row's Redacted field.
func Redact(text string) (string, bool) {
	redacted := false
	out := text
	for _, p := range patterns {
		if p.MatchString(out) {
			redacted = true
			out = p.ReplaceAllString(out, replacement)
		}
	}
	return out, redacted
}
