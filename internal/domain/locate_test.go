package domain

import "testing"

func testGroup() ExperimentGroup {
	return ExperimentGroup{
		ID:       "group-1",
		Username: "jdoe",
		TestProgram: TestProgram{
			Name:   "TP-ICL-01",
			Family: "ICL",
		},
		Experiments: []Experiment{
			{
				ID:    "exp-1",
				State: ExperimentStateDraft,
				Stages: []Stage{
					{
						ID:   "stage-class",
						Type: StageTypeClass,
						Class: &ClassStageData{
							Conditions: []Condition{
								{
									ID:            "cond-1",
									EngineeringID: "ENG-1",
									LocationCode:  "6262",
									ProcessRecord: ProcessRecord{Status: ProcessStatusNotStarted},
								},
								{
									ID:            "cond-2",
									EngineeringID: "ENG-2",
									LocationCode:  "7712",
									ProcessRecord: ProcessRecord{Status: ProcessStatusRunning},
								},
							},
						},
					},
					{
						ID:   "stage-olb",
						Type: StageTypeOlb,
						Olb: &OlbStageData{
							Operation:     "burn",
							ProcessRecord: ProcessRecord{Status: ProcessStatusNotStarted},
						},
					},
				},
			},
			{
				ID:    "exp-2",
				State: ExperimentStateReady,
				Stages: []Stage{
					{
						ID:   "stage-maestro",
						Type: StageTypeMaestro,
						Maestro: &MaestroStageData{
							RecipeName:    "flow-a",
							ProcessRecord: ProcessRecord{Status: ProcessStatusCompleted},
						},
					},
				},
			},
		},
	}
}

func TestLocateCondition(t *testing.T) {
	group := testGroup()
	target, ok := group.Locate("cond-2")
	if !ok {
		t.Fatalf("expected cond-2 to resolve")
	}
	if target.Experiment.ID != "exp-1" || target.Stage.ID != "stage-class" {
		t.Fatalf("unexpected owner path: %s/%s", target.Experiment.ID, target.Stage.ID)
	}
	if target.Condition == nil || target.Condition.ID != "cond-2" {
		t.Fatalf("expected condition cond-2")
	}
	if target.Record != &target.Condition.ProcessRecord {
		t.Fatalf("record must alias the condition's process record")
	}
}

func TestLocateStage(t *testing.T) {
	group := testGroup()
	target, ok := group.Locate("stage-maestro")
	if !ok {
		t.Fatalf("expected stage-maestro to resolve")
	}
	if target.Experiment.ID != "exp-2" || target.Stage.ID != "stage-maestro" {
		t.Fatalf("unexpected owner path: %s/%s", target.Experiment.ID, target.Stage.ID)
	}
	if target.Condition != nil {
		t.Fatalf("stage match must not carry a condition")
	}
	if target.Record == nil || target.Record.Status != ProcessStatusCompleted {
		t.Fatalf("expected the maestro inline record")
	}
}

func TestLocateIsTotalOverAssignedIDs(t *testing.T) {
	group := testGroup()
	for _, id := range []string{"cond-1", "cond-2", "stage-olb", "stage-maestro"} {
		if _, ok := group.Locate(id); !ok {
			t.Fatalf("expected %s to resolve", id)
		}
	}
	for _, id := range []string{"", "never-assigned", "group-1", "stage-class"} {
		if _, ok := group.Locate(id); ok {
			t.Fatalf("expected %s not to resolve", id)
		}
	}
}

func TestLocateMutatesInPlace(t *testing.T) {
	group := testGroup()
	target, ok := group.Locate("cond-1")
	if !ok {
		t.Fatalf("expected cond-1 to resolve")
	}
	target.Record.Status = ProcessStatusRunning
	if got := group.Experiments[0].Stages[0].Class.Conditions[0].Status; got != ProcessStatusRunning {
		t.Fatalf("expected in-place mutation, got %s", got)
	}
}
