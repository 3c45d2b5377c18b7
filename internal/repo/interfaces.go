package repo

import (
	"context"
	"errors"

	"github.com/waferline-labs/waferline-go/internal/domain"
)

// ErrNotFound is returned when an id does not resolve to any aggregate.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a whole-document replace lost the race
// against a concurrent writer.
var ErrVersionConflict = errors.New("version conflict")

type GroupFilter struct {
	Username      string
	Team          string
	Segment       string
	ProgramFamily string
	Limit         int
}

// GroupRepository persists experiment groups as whole documents. Replace is
// a full-document swap guarded by the group's version.
type GroupRepository interface {
	Insert(ctx context.Context, group domain.ExperimentGroup) error
	Get(ctx context.Context, id string) (domain.ExperimentGroup, error)
	GetByCorrelationID(ctx context.Context, id string) (domain.ExperimentGroup, error)
	GetByExperimentID(ctx context.Context, id string) (domain.ExperimentGroup, error)
	Replace(ctx context.Context, group domain.ExperimentGroup) error
	List(ctx context.Context, filter GroupFilter) ([]domain.ExperimentGroup, error)
}
