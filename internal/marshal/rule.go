package marshal

import (
	"fmt"
	"strings"
	"time"

	"github.com/mkern/rulesync/internal/model"
)

// canonicalTimeLayout is the layout rule files are always written with.
const canonicalTimeLayout = "2006-01-02T15:04:05Z"

// acceptedTimeLayouts are the layouts the frontmatter parser must accept,
// per spec §6, tried in order.
var acceptedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range acceptedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// RuleToMarkdown renders a Rule as the frontmatter+body document spec §6
// defines for file-storage mode and import output.
func RuleToMarkdown(r *model.Rule) ([]byte, error) {
	fm := make(map[string]any)
	fm["id"] = r.ID
	fm["name"] = r.Name
	fm["scope"] = string(r.Scope)
	if r.Scope == model.ScopeLocal && len(r.TargetPaths) > 0 {
		fm["targetPaths"] = append([]string(nil), r.TargetPaths...)
	}
	adapters := make([]string, len(r.EnabledAdapters))
	for i, a := range r.EnabledAdapters {
		adapters[i] = string(a)
	}
	fm["enabledAdapters"] = adapters
	fm["enabled"] = r.Enabled
	fm["createdAt"] = r.CreatedAt.UTC().Format(canonicalTimeLayout)
	fm["updatedAt"] = r.UpdatedAt.UTC().Format(canonicalTimeLayout)

	doc := &Document{Frontmatter: fm, Body: r.Content}
	return Render(doc)
}

// MarkdownToRule parses a frontmatter+body document back into a Rule.
// Timestamps may be expressed in any of the layouts spec §6 lists.
func MarkdownToRule(content []byte) (*model.Rule, error) {
	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse rule document: %w", err)
	}

	r := &model.Rule{Content: doc.Body}

	if v, ok := doc.Frontmatter["id"].(string); ok {
		r.ID = v
	}
	if v, ok := doc.Frontmatter["name"].(string); ok {
		r.Name = v
	}
	if v, ok := doc.Frontmatter["scope"].(string); ok {
		r.Scope = model.Scope(v)
	}
	if raw, ok := doc.Frontmatter["targetPaths"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				r.TargetPaths = append(r.TargetPaths, s)
			}
		}
	}
	if raw, ok := doc.Frontmatter["enabledAdapters"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				r.EnabledAdapters = append(r.EnabledAdapters, model.AdapterId(s))
			}
		}
	}
	if v, ok := doc.Frontmatter["enabled"].(bool); ok {
		r.Enabled = v
	}
	if v, ok := doc.Frontmatter["createdAt"]; ok {
		r.CreatedAt = parseTimestamp(v)
	}
	if v, ok := doc.Frontmatter["updatedAt"]; ok {
		r.UpdatedAt = parseTimestamp(v)
	}

	return r, nil
}

// InferNameFromStem cleans a file stem into a candidate rule name, used by
// the import pipeline when a source document carries no explicit name.
func InferNameFromStem(stem string) string {
	return strings.TrimSpace(stem)
}
