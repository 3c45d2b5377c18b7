package groupvalidator

import (
	"errors"
	"strings"
	"testing"

	"github.com/waferline-labs/waferline-go/internal/domain"
)

func experimentWithSuffixes(suffixes ...string) domain.Experiment {
	conditions := make([]domain.Condition, 0, len(suffixes))
	for i, suffix := range suffixes {
		conditions = append(conditions, domain.Condition{
			ID:              "cond-" + string(rune('a'+i)),
			EngineeringID:   "ENG-1",
			LocationCode:    "6262",
			VpoCustomSuffix: suffix,
		})
	}
	return domain.Experiment{
		ID:    "exp-1",
		State: domain.ExperimentStateDraft,
		Stages: []domain.Stage{
			{
				ID:    "stage-1",
				Type:  domain.StageTypeClass,
				Class: &domain.ClassStageData{Conditions: conditions},
			},
		},
	}
}

func TestSuffixInvariant(t *testing.T) {
	tests := []struct {
		name     string
		suffixes []string
		wantOK   bool
	}{
		{"one empty one set", []string{"", "RA"}, true},
		{"three way", []string{"", "RA", "RB"}, true},
		{"both empty", []string{"", ""}, false},
		{"duplicate suffix", []string{"RA", "RA"}, false},
		{"zero empties", []string{"RA", "RB"}, false},
		{"malformed suffix", []string{"", "RA!"}, false},
		{"overlong suffix", []string{"", "ABCDEFGHI"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExperiment(experimentWithSuffixes(tc.suffixes...))
			if tc.wantOK && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestLoneConditionMustNotCarrySuffix(t *testing.T) {
	err := ValidateExperiment(experimentWithSuffixes("RA"))
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Issues) != 1 || !strings.Contains(verr.Issues[0], "not duplicated") {
		t.Fatalf("unexpected issues: %v", verr.Issues)
	}

	if err := ValidateExperiment(experimentWithSuffixes("")); err != nil {
		t.Fatalf("lone suffix-free condition must validate, got %v", err)
	}
}

func TestIssueNamesStagePath(t *testing.T) {
	group := domain.ExperimentGroup{Experiments: []domain.Experiment{experimentWithSuffixes("", "")}}
	err := ValidateGroup(group)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if !strings.Contains(verr.Issues[0], "experiments[0].stages[0]") {
		t.Fatalf("issue must name the stage path: %v", verr.Issues)
	}
}

func TestPartitionsSpanStagesWithinExperiment(t *testing.T) {
	experiment := experimentWithSuffixes("")
	experiment.Stages = append(experiment.Stages, domain.Stage{
		ID:   "stage-2",
		Type: domain.StageTypeClass,
		Class: &domain.ClassStageData{Conditions: []domain.Condition{
			{ID: "cond-x", EngineeringID: "ENG-1", LocationCode: "6262", VpoCustomSuffix: ""},
		}},
	})
	if err := ValidateExperiment(experiment); err == nil {
		t.Fatalf("duplicates across stages of one experiment must fail")
	}
}

func TestDistinctOperationKeysAreIndependent(t *testing.T) {
	experiment := experimentWithSuffixes("")
	experiment.Stages[0].Class.Conditions = append(experiment.Stages[0].Class.Conditions, domain.Condition{
		ID:            "cond-other",
		EngineeringID: "ENG-2",
		LocationCode:  "7712",
	})
	if err := ValidateExperiment(experiment); err != nil {
		t.Fatalf("distinct operation keys must validate, got %v", err)
	}
}
