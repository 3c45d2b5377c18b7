package domain

import "time"

// ProcessRecord is the mutable status slice shared by class conditions and
// the inline records of non-class stages.
type ProcessRecord struct {
	Status              ProcessStatus `json:"status"`
	Comment             string        `json:"comment,omitempty"`
	StatusChangeComment string        `json:"status_change_comment,omitempty"`
	ModifiedAt          time.Time     `json:"modified_at"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
}

// SetStatus applies a status change and stamps the bookkeeping timestamps.
func (r *ProcessRecord) SetStatus(status ProcessStatus, now time.Time) {
	r.Status = status
	r.ModifiedAt = now.UTC()
	if status.IsFinal() {
		completed := now.UTC()
		r.CompletedAt = &completed
	}
}

// ThermalStep is one thermal sub-step of a class condition.
type ThermalStep struct {
	Name         string `json:"name"`
	TemperatureC int    `json:"temperature_c"`
}

// BinResults is the pass/fail bin outcome reported for a class condition.
type BinResults struct {
	GoodBins int `json:"good_bins"`
	BadBins  int `json:"bad_bins"`
}

// FuseConfig describes optional fuse programming applied during a condition.
type FuseConfig struct {
	Descriptor string `json:"descriptor"`
}

// Condition is the smallest unit of work tracked by status inside a class
// stage.
type Condition struct {
	ID              string            `json:"condition_id"`
	EngineeringID   string            `json:"engineering_id"`
	LocationCode    string            `json:"location_code"`
	ThermalSteps    []ThermalStep     `json:"thermal_steps,omitempty"`
	ProcessRecord
	Results         *BinResults       `json:"results,omitempty"`
	Fuse            *FuseConfig       `json:"fuse,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	VpoCustomSuffix string            `json:"vpo_custom_suffix,omitempty"`
}

// OperationKey identifies conditions that run the same operation and thus
// need disambiguating VPO suffixes when duplicated.
type OperationKey struct {
	EngineeringID string
	LocationCode  string
}

func (c Condition) OperationKey() OperationKey {
	return OperationKey{EngineeringID: c.EngineeringID, LocationCode: c.LocationCode}
}
