// Package groupexport flattens experiment groups into newline-delimited
// JSON snapshots, one row per process record, and ships them to object
// storage for offline analysis.
package groupexport

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/waferline-labs/waferline-go/internal/domain"
)

// Exporter writes a group snapshot to some destination.
type Exporter interface {
	Export(ctx context.Context, group domain.ExperimentGroup) error
}

// SnapshotRow is one process record of a group, denormalized so each line
// stands alone. ConditionID is empty for inline stage records.
type SnapshotRow struct {
	GroupID       string `json:"group_id"`
	Username      string `json:"username"`
	ProgramName   string `json:"program_name"`
	ProgramFamily string `json:"program_family"`
	ExperimentID  string `json:"experiment_id"`
	State         string `json:"state"`
	Archived      bool   `json:"archived"`
	Vpo           string `json:"vpo,omitempty"`
	StageID       string `json:"stage_id"`
	StageType     string `json:"stage_type"`
	ConditionID   string `json:"condition_id,omitempty"`
	EngineeringID string `json:"engineering_id,omitempty"`
	LocationCode  string `json:"location_code,omitempty"`
	VpoSuffix     string `json:"vpo_custom_suffix,omitempty"`
	Status        string `json:"status"`
	Comment       string `json:"status_change_comment,omitempty"`
	GoodBins      *int   `json:"good_bins,omitempty"`
	BadBins       *int   `json:"bad_bins,omitempty"`
	ModifiedAt    string `json:"modified_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// Rows flattens every condition and inline stage record of the group.
func Rows(group domain.ExperimentGroup) []SnapshotRow {
	var rows []SnapshotRow
	for i := range group.Experiments {
		experiment := &group.Experiments[i]
		base := SnapshotRow{
			GroupID:       group.ID,
			Username:      group.Username,
			ProgramName:   group.TestProgram.Name,
			ProgramFamily: group.TestProgram.Family,
			ExperimentID:  experiment.ID,
			State:         string(experiment.State),
			Archived:      experiment.Archived,
			Vpo:           experiment.Vpo,
		}
		for j := range experiment.Stages {
			stage := &experiment.Stages[j]
			if stage.Type == domain.StageTypeClass {
				for _, condition := range stage.Conditions() {
					row := base
					row.StageID = stage.ID
					row.StageType = string(stage.Type)
					row.ConditionID = condition.ID
					row.EngineeringID = condition.EngineeringID
					row.LocationCode = condition.LocationCode
					row.VpoSuffix = condition.VpoCustomSuffix
					fillRecord(&row, condition.ProcessRecord)
					if condition.Results != nil {
						good, bad := condition.Results.GoodBins, condition.Results.BadBins
						row.GoodBins, row.BadBins = &good, &bad
					}
					rows = append(rows, row)
				}
				continue
			}
			record := stage.Record()
			if record == nil {
				continue
			}
			row := base
			row.StageID = stage.ID
			row.StageType = string(stage.Type)
			fillRecord(&row, *record)
			rows = append(rows, row)
		}
	}
	return rows
}

func fillRecord(row *SnapshotRow, record domain.ProcessRecord) {
	row.Status = string(record.Status)
	row.Comment = record.StatusChangeComment
	if !record.ModifiedAt.IsZero() {
		row.ModifiedAt = record.ModifiedAt.UTC().Format(time.RFC3339Nano)
	}
	if record.CompletedAt != nil {
		row.CompletedAt = record.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
}

// NDJSONExporter writes snapshot rows as newline-delimited JSON.
type NDJSONExporter struct {
	enc *json.Encoder
}

func NewNDJSONExporter(w io.Writer) *NDJSONExporter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &NDJSONExporter{enc: enc}
}

func (e *NDJSONExporter) Export(ctx context.Context, group domain.ExperimentGroup) error {
	for _, row := range Rows(group) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
