package reconcile

import "github.com/mkern/rulesync/internal/model"

// BuildPlan performs the single-pass join of desired and actual state
// described by spec §4.6.3: every expected path not found on disk is a
// create, every expected path found with a differing hash is an update,
// every expected path found with a matching hash is unchanged, and every
// found path with no matching expected entry is a remove.
func BuildPlan(desired []ExpectedArtifact, actual []FoundArtifact) Plan {
	actualByPath := make(map[string]FoundArtifact, len(actual))
	for _, a := range actual {
		actualByPath[a.Path] = a
	}

	var plan Plan
	seen := make(map[string]bool, len(desired))

	for i := range desired {
		exp := desired[i]
		seen[exp.Path] = true
		found, ok := actualByPath[exp.Path]
		item := PlanItem{Path: exp.Path, Expected: &desired[i]}
		switch {
		case !ok:
			item.Op = model.OpCreate
			plan.ToCreate = append(plan.ToCreate, item)
		case found.ContentHash != exp.ContentHash:
			f := found
			item.Found = &f
			item.Op = model.OpUpdate
			plan.ToUpdate = append(plan.ToUpdate, item)
		default:
			f := found
			item.Found = &f
			item.Op = model.OpCheck
			plan.Unchanged = append(plan.Unchanged, item)
		}
	}

	for i := range actual {
		f := actual[i]
		if seen[f.Path] {
			continue
		}
		plan.ToRemove = append(plan.ToRemove, PlanItem{
			Path: f.Path, Op: model.OpRemove, Found: &actual[i],
		})
	}

	return plan
}
