package domain

// Classification is the group-level rolling/completed verdict.
type Classification string

const (
	ClassificationRolling   Classification = "rolling"
	ClassificationCompleted Classification = "completed"
)

// Classify reports Rolling iff at least one non-archived experiment carries
// at least one record in a non-final status. A group with zero non-archived
// experiments is Completed.
func Classify(g ExperimentGroup) Classification {
	for i := range g.Experiments {
		experiment := &g.Experiments[i]
		if experiment.Archived {
			continue
		}
		if experimentHasOpenWork(experiment) {
			return ClassificationRolling
		}
	}
	return ClassificationCompleted
}

func experimentHasOpenWork(e *Experiment) bool {
	for i := range e.Stages {
		stage := &e.Stages[i]
		if stage.Type == StageTypeClass {
			for _, condition := range stage.Conditions() {
				if !condition.Status.IsFinal() {
					return true
				}
			}
			continue
		}
		if record := stage.Record(); record != nil && !record.Status.IsFinal() {
			return true
		}
	}
	return false
}
