// Package reconcile is the reconciliation core: it computes the desired
// on-disk state from the catalog, scans the actual on-disk state from known
// locations only, diffs the two, and executes the resulting plan with
// atomic writes, per spec §4.6.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mkern/rulesync/internal/model"
)

// maxProbeBytes bounds the actual-state scan: a file larger than this is
// skipped with a warning, never hashed, never removed.
const maxProbeBytes = 10 * 1024 * 1024

// ExpectedArtifact is one entry of the desired state: a path the catalog
// says should hold exactly Content.
type ExpectedArtifact struct {
	Path         string
	Adapter      model.AdapterId
	ArtifactType model.ArtifactType
	Scope        model.Scope
	RepoRoot     string
	Content      []byte
	ContentHash  string
}

// FoundArtifact is one entry of the actual state: a path that currently
// holds content with the given hash.
type FoundArtifact struct {
	Path         string
	Adapter      model.AdapterId
	ArtifactType model.ArtifactType
	Scope        model.Scope
	ContentHash  string
}

// PlanItem is one line of a ReconcilePlan: the path, the operation the plan
// assigns it, and whichever of Expected/Found apply to that operation.
type PlanItem struct {
	Path     string
	Op       model.ReconcileOp
	Expected *ExpectedArtifact
	Found    *FoundArtifact
}

// Plan is the single-pass join of desired and actual state (spec §4.6.3).
type Plan struct {
	ToCreate  []PlanItem
	ToUpdate  []PlanItem
	ToRemove  []PlanItem
	Unchanged []PlanItem
}

// Result is the outcome of executing a Plan (spec §4.6.4). Success is
// errors being empty; individual item failures do not abort the run.
type Result struct {
	Success   bool
	Created   int
	Updated   int
	Removed   int
	Unchanged int
	Errors    []string
	Warnings  []string
}

func hashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
