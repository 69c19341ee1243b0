package taskpage

import (
	"sort"

	"github.com/r4u-dev/r4u-console/internal/api"
)

// GraderOption is one row of the evaluation-config grader picker.
type GraderOption struct {
	api.Grader
	Selected bool
}

// OrderGraders arranges the project's graders for display: every selected
// grader before every unselected one, alphabetical by name within each
// group. Selected ids that no longer resolve to a grader are dropped.
func OrderGraders(graders []api.Grader, selectedIDs []int64) []GraderOption {
	selected := make(map[int64]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}

	out := make([]GraderOption, 0, len(graders))
	for _, g := range graders {
		out = append(out, GraderOption{Grader: g, Selected: selected[g.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Selected != out[j].Selected {
			return out[i].Selected
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
