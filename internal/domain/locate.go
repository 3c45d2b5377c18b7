package domain

// CorrelationTarget is the exact owner of a correlation id inside a group.
// Condition is nil when the id named a non-class stage; Record always points
// at the mutable status record.
type CorrelationTarget struct {
	Experiment *Experiment
	Stage      *Stage
	Condition  *Condition
	Record     *ProcessRecord
}

// Locate resolves a correlation id to its owner inside the group. Conditions
// are searched first; a stage id match covers the three non-class stage
// types, which have no inner conditions.
func (g *ExperimentGroup) Locate(correlationID string) (CorrelationTarget, bool) {
	if g == nil || correlationID == "" {
		return CorrelationTarget{}, false
	}
	for i := range g.Experiments {
		experiment := &g.Experiments[i]
		for j := range experiment.Stages {
			stage := &experiment.Stages[j]
			if stage.Type != StageTypeClass || stage.Class == nil {
				continue
			}
			for k := range stage.Class.Conditions {
				condition := &stage.Class.Conditions[k]
				if condition.ID == correlationID {
					return CorrelationTarget{
						Experiment: experiment,
						Stage:      stage,
						Condition:  condition,
						Record:     &condition.ProcessRecord,
					}, true
				}
			}
		}
	}
	for i := range g.Experiments {
		experiment := &g.Experiments[i]
		for j := range experiment.Stages {
			stage := &experiment.Stages[j]
			if stage.ID != correlationID {
				continue
			}
			record := stage.Record()
			if record == nil {
				continue
			}
			return CorrelationTarget{
				Experiment: experiment,
				Stage:      stage,
				Record:     record,
			}, true
		}
	}
	return CorrelationTarget{}, false
}
