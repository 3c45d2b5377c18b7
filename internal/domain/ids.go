package domain

import (
	"strings"

	"github.com/google/uuid"
)

// AssignIDs stamps fresh server-side ids on the group and every nested
// experiment, stage, and condition, overwriting whatever the caller sent.
func AssignIDs(g *ExperimentGroup) {
	g.ID = uuid.NewString()
	for i := range g.Experiments {
		AssignExperimentIDs(&g.Experiments[i])
	}
}

// AssignExperimentIDs stamps fresh ids on one experiment subtree.
func AssignExperimentIDs(e *Experiment) {
	e.ID = uuid.NewString()
	for i := range e.Stages {
		stage := &e.Stages[i]
		stage.ID = uuid.NewString()
		if stage.Type == StageTypeClass && stage.Class != nil {
			for j := range stage.Class.Conditions {
				stage.Class.Conditions[j].ID = uuid.NewString()
			}
		}
	}
}

// CarriesIDs reports whether any id inside the group is already populated.
// Creation requests must arrive id-free; ids are assigned server-side.
func CarriesIDs(g ExperimentGroup) bool {
	if strings.TrimSpace(g.ID) != "" {
		return true
	}
	for _, experiment := range g.Experiments {
		if ExperimentCarriesIDs(experiment) {
			return true
		}
	}
	return false
}

// ExperimentCarriesIDs reports whether any id inside one experiment subtree
// is already populated.
func ExperimentCarriesIDs(e Experiment) bool {
	if strings.TrimSpace(e.ID) != "" {
		return true
	}
	for _, stage := range e.Stages {
		if strings.TrimSpace(stage.ID) != "" {
			return true
		}
		for _, condition := range stage.Conditions() {
			if strings.TrimSpace(condition.ID) != "" {
				return true
			}
		}
	}
	return false
}
