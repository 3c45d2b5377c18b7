package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/waferline-labs/waferline-go/internal/domain"
	"github.com/waferline-labs/waferline-go/internal/repo"
)

func encodeGroup(group domain.ExperimentGroup) ([]byte, error) {
	return json.Marshal(group)
}

func decodeGroup(raw []byte) (domain.ExperimentGroup, error) {
	var group domain.ExperimentGroup
	if err := json.Unmarshal(raw, &group); err != nil {
		return domain.ExperimentGroup{}, err
	}
	return group, nil
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

type ref struct {
	id   string
	kind string
}

const (
	refKindExperiment = "experiment"
	refKindStage      = "stage"
	refKindCondition  = "condition"
)

// refsForGroup flattens every experiment, stage, and condition id for the
// secondary index that backs correlation-id resolution.
func refsForGroup(group domain.ExperimentGroup) []ref {
	refs := make([]ref, 0)
	for _, experiment := range group.Experiments {
		refs = append(refs, ref{id: experiment.ID, kind: refKindExperiment})
		for _, stage := range experiment.Stages {
			refs = append(refs, ref{id: stage.ID, kind: refKindStage})
			for _, condition := range stage.Conditions() {
				refs = append(refs, ref{id: condition.ID, kind: refKindCondition})
			}
		}
	}
	return refs
}
