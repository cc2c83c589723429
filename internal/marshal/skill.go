package marshal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkern/rulesync/internal/model"
)

// SkillMetadata is the shape of skill.json next to a skill's SKILL.md, per
// spec §6.
type SkillMetadata struct {
	ID          string                   `json:"id,omitempty"`
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	EntryPoint  string                   `json:"entry_point"`
	InputSchema []model.CommandArgument  `json:"input_schema,omitempty"`
	Scope       model.Scope              `json:"scope"`
	Enabled     bool                     `json:"enabled"`
	CreatedAt   *time.Time               `json:"created_at,omitempty"`
	UpdatedAt   *time.Time               `json:"updated_at,omitempty"`
}

// SkillToMetadata builds the skill.json payload for s.
func SkillToMetadata(s *model.Skill) SkillMetadata {
	created, updated := s.CreatedAt, s.UpdatedAt
	return SkillMetadata{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		EntryPoint:  s.EntryPoint,
		InputSchema: s.InputSchema,
		Scope:       s.Scope,
		Enabled:     s.Enabled,
		CreatedAt:   &created,
		UpdatedAt:   &updated,
	}
}

// MarshalSkillMetadata renders skill.json bytes for s.
func MarshalSkillMetadata(s *model.Skill) ([]byte, error) {
	meta := SkillToMetadata(s)
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal skill metadata: %w", err)
	}
	return append(b, '\n'), nil
}

// UnmarshalSkillMetadata parses skill.json bytes into a SkillMetadata.
func UnmarshalSkillMetadata(data []byte) (*SkillMetadata, error) {
	var meta SkillMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal skill metadata: %w", err)
	}
	return &meta, nil
}
