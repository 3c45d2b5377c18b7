package domain

import (
	"errors"
	"strings"
	"time"
)

// TestProgram is the test-program metadata a group was submitted against.
type TestProgram struct {
	Name   string `json:"name"`
	Family string `json:"family"`
	Step   string `json:"step,omitempty"`
}

// MaterialIssue is the unit-supply hold sub-state of an experiment's material.
type MaterialIssue struct {
	IsRequired    bool   `json:"is_required"`
	ErrorComments string `json:"error_comments,omitempty"`
}

// Material describes the units and lots an experiment consumes.
type Material struct {
	UnitCount     int           `json:"unit_count"`
	Lots          []string      `json:"lots,omitempty"`
	MaterialIssue MaterialIssue `json:"material_issue"`
}

// Experiment belongs to exactly one group and fans out into ordered stages.
type Experiment struct {
	ID       string          `json:"experiment_id"`
	Material Material        `json:"material"`
	Vpo      string          `json:"vpo,omitempty"`
	State    ExperimentState `json:"state"`
	Archived bool            `json:"archived"`
	Tags     []string        `json:"tags,omitempty"`
	Stages   []Stage         `json:"stages"`
}

// ExperimentGroup is the root aggregate. It is created atomically with all
// nested ids freshly assigned and mutated only via whole-group replace.
type ExperimentGroup struct {
	ID               string       `json:"group_id"`
	Username         string       `json:"username"`
	Team             string       `json:"team,omitempty"`
	Segment          string       `json:"segment,omitempty"`
	DisplayName      string       `json:"display_name,omitempty"`
	TestProgram      TestProgram  `json:"test_program"`
	SubmittedAt      time.Time    `json:"submitted_at"`
	SubmittedToQueue bool         `json:"submitted_to_queue"`
	Experiments      []Experiment `json:"experiments"`

	// Version guards whole-document replaces; maintained by the store.
	Version int64 `json:"version"`
}

func (g ExperimentGroup) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("group id is required")
	}
	if strings.TrimSpace(g.Username) == "" {
		return errors.New("username is required")
	}
	if strings.TrimSpace(g.TestProgram.Name) == "" {
		return errors.New("test program name is required")
	}
	if strings.TrimSpace(g.TestProgram.Family) == "" {
		return errors.New("test program family is required")
	}
	for i := range g.Experiments {
		if err := g.Experiments[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e Experiment) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("experiment id is required")
	}
	if NormalizeExperimentState(string(e.State)) == "" {
		return errors.New("experiment state is required")
	}
	for i := range e.Stages {
		if err := e.Stages[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Stage) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("stage id is required")
	}
	switch s.Type {
	case StageTypeClass:
		if s.Class == nil {
			return errors.New("class stage data is required")
		}
	case StageTypeOlb:
		if s.Olb == nil {
			return errors.New("olb stage data is required")
		}
	case StageTypePpv:
		if s.Ppv == nil {
			return errors.New("ppv stage data is required")
		}
	case StageTypeMaestro:
		if s.Maestro == nil {
			return errors.New("maestro stage data is required")
		}
	default:
		return errors.New("stage type is required")
	}
	return nil
}

// ExperimentByID returns a pointer into the group's experiment slice.
func (g *ExperimentGroup) ExperimentByID(id string) *Experiment {
	if g == nil {
		return nil
	}
	for i := range g.Experiments {
		if g.Experiments[i].ID == id {
			return &g.Experiments[i]
		}
	}
	return nil
}
