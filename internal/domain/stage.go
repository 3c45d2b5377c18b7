package domain

import "strings"

// StageType discriminates the shape of a stage's data.
type StageType string

const (
	StageTypeClass   StageType = "class"
	StageTypeOlb     StageType = "olb"
	StageTypePpv     StageType = "ppv"
	StageTypeMaestro StageType = "maestro"
)

// NormalizeStageType maps free-form values to canonical stage types.
func NormalizeStageType(value string) StageType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StageTypeClass):
		return StageTypeClass
	case string(StageTypeOlb):
		return StageTypeOlb
	case string(StageTypePpv):
		return StageTypePpv
	case string(StageTypeMaestro):
		return StageTypeMaestro
	default:
		return ""
	}
}

// Stage is one ordered step of an experiment. Exactly one of the data
// variants is set, selected by Type.
type Stage struct {
	ID      string            `json:"stage_id"`
	Type    StageType         `json:"stage_type"`
	Class   *ClassStageData   `json:"class,omitempty"`
	Olb     *OlbStageData     `json:"olb,omitempty"`
	Ppv     *PpvStageData     `json:"ppv,omitempty"`
	Maestro *MaestroStageData `json:"maestro,omitempty"`
}

// ClassStageData holds the class-test conditions of a stage.
type ClassStageData struct {
	Conditions []Condition `json:"conditions"`
}

// OlbStageData is the inline record of an out-of-line burn stage.
type OlbStageData struct {
	Operation     string        `json:"operation,omitempty"`
	BurnRecipe    string        `json:"burn_recipe,omitempty"`
	ProcessRecord ProcessRecord `json:"process_record"`
}

// PpvStageData is the inline record of a production-verification stage.
type PpvStageData struct {
	SampleSize    int           `json:"sample_size,omitempty"`
	ProcessRecord ProcessRecord `json:"process_record"`
}

// MaestroStageData is the inline record of an orchestration stage.
type MaestroStageData struct {
	RecipeName    string        `json:"recipe_name,omitempty"`
	ProcessRecord ProcessRecord `json:"process_record"`
}

// Record returns the inline process record of a non-class stage, or nil for
// class stages (their records live on the individual conditions).
func (s *Stage) Record() *ProcessRecord {
	if s == nil {
		return nil
	}
	switch s.Type {
	case StageTypeOlb:
		if s.Olb != nil {
			return &s.Olb.ProcessRecord
		}
	case StageTypePpv:
		if s.Ppv != nil {
			return &s.Ppv.ProcessRecord
		}
	case StageTypeMaestro:
		if s.Maestro != nil {
			return &s.Maestro.ProcessRecord
		}
	}
	return nil
}

// Conditions returns the class conditions of the stage, or nil for non-class
// stages.
func (s *Stage) Conditions() []Condition {
	if s == nil || s.Type != StageTypeClass || s.Class == nil {
		return nil
	}
	return s.Class.Conditions
}
