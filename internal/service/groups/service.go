package groups

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/waferline-labs/waferline-go/internal/domain"
	"github.com/waferline-labs/waferline-go/internal/groupvalidator"
	"github.com/waferline-labs/waferline-go/internal/platform/programcatalog"
	"github.com/waferline-labs/waferline-go/internal/repo"
)

type Service struct {
	groups  repo.GroupRepository
	catalog *programcatalog.Catalog
	now     func() time.Time
}

// New builds the service. The catalog is optional; when present, group
// creation rejects unknown program families and disallowed stage types.
func New(groupRepo repo.GroupRepository, catalog *programcatalog.Catalog) *Service {
	if groupRepo == nil {
		return nil
	}
	return &Service{
		groups:  groupRepo,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// StatusUpdate is an incoming status callback. Comment is nil when the field
// was omitted, which leaves the stored status-change comment untouched.
type StatusUpdate struct {
	CorrelationID       string
	NewStatus           domain.ProcessStatus
	Comment             *string
	IsIssueStep         bool
	MaterialIssueFailed bool
}

// StatusTransition reports what a status callback did.
type StatusTransition struct {
	GroupID       string
	ExperimentID  string
	StageID       string
	ConditionID   string
	From          domain.ProcessStatus
	To            domain.ProcessStatus
	Suppressed    bool
	MaterialIssue bool
}

// ApplyStatusUpdate resolves the correlation id and applies the callback.
// Issue steps are informational pings: they resolve but never mutate.
func (s *Service) ApplyStatusUpdate(ctx context.Context, update StatusUpdate) (StatusTransition, error) {
	if domain.NormalizeProcessStatus(string(update.NewStatus)) == "" {
		return StatusTransition{}, groupvalidator.New("status is required")
	}
	status := domain.NormalizeProcessStatus(string(update.NewStatus))

	group, err := s.groups.GetByCorrelationID(ctx, update.CorrelationID)
	if err != nil {
		return StatusTransition{}, err
	}
	target, ok := group.Locate(update.CorrelationID)
	if !ok {
		return StatusTransition{}, repo.ErrNotFound
	}

	transition := StatusTransition{
		GroupID:      group.ID,
		ExperimentID: target.Experiment.ID,
		StageID:      target.Stage.ID,
		From:         target.Record.Status,
		To:           status,
	}
	if target.Condition != nil {
		transition.ConditionID = target.Condition.ID
	}

	if update.IsIssueStep {
		transition.Suppressed = true
		transition.To = transition.From
		return transition, nil
	}

	now := s.now()
	switch {
	case status == domain.ProcessStatusPendingMaterialIssue && update.MaterialIssueFailed:
		target.Record.SetStatus(status, now)
		target.Record.StatusChangeComment = ""
		target.Experiment.Material.MaterialIssue.IsRequired = true
		target.Experiment.Material.MaterialIssue.ErrorComments = commentValue(update.Comment)
		transition.MaterialIssue = true
	case status == domain.ProcessStatusPendingMaterialIssue:
		target.Record.SetStatus(status, now)
		target.Record.StatusChangeComment = commentValue(update.Comment)
		target.Experiment.Material.MaterialIssue.ErrorComments = ""
		transition.MaterialIssue = true
	default:
		target.Record.SetStatus(status, now)
		if update.Comment != nil {
			target.Record.StatusChangeComment = *update.Comment
		}
	}

	if err := s.groups.Replace(ctx, group); err != nil {
		return StatusTransition{}, err
	}
	return transition, nil
}

// ApplyResultUpdate replaces a condition's bin results, last write wins. The
// correlation id must name a class-stage condition.
func (s *Service) ApplyResultUpdate(ctx context.Context, conditionID string, results *domain.BinResults) error {
	if results == nil {
		return groupvalidator.New("results are required")
	}
	group, err := s.groups.GetByCorrelationID(ctx, conditionID)
	if err != nil {
		return err
	}
	target, ok := group.Locate(conditionID)
	if !ok || target.Condition == nil {
		return repo.ErrNotFound
	}

	assigned := *results
	target.Condition.Results = &assigned
	target.Condition.ModifiedAt = s.now()
	return s.groups.Replace(ctx, group)
}

// VpoUpdate is the asynchronous VPO-assignment callback for one experiment.
type VpoUpdate struct {
	ExperimentID           string
	Vpo                    string
	IsFinishedSuccessfully bool
	ErrorMessage           string
}

// VpoResolution reports how a VPO callback settled.
type VpoResolution struct {
	GroupID      string
	ExperimentID string
	State        domain.ExperimentState
	Vpo          string
	Applied      bool
}

// ApplyVpoUpdate reconciles experiment state after a VPO assignment. A failed
// callback leaves the aggregate untouched; the failure travels back to the
// caller through the resolution for out-of-band reporting.
func (s *Service) ApplyVpoUpdate(ctx context.Context, update VpoUpdate) (VpoResolution, error) {
	group, err := s.groups.GetByExperimentID(ctx, update.ExperimentID)
	if err != nil {
		return VpoResolution{}, err
	}
	experiment := group.ExperimentByID(update.ExperimentID)
	if experiment == nil {
		return VpoResolution{}, repo.ErrNotFound
	}

	resolution := VpoResolution{
		GroupID:      group.ID,
		ExperimentID: experiment.ID,
		State:        experiment.State,
		Vpo:          experiment.Vpo,
	}
	if !update.IsFinishedSuccessfully {
		return resolution, nil
	}

	settled, writeVpo := experiment.State.SettleAfterVpoAssignment()
	experiment.State = settled
	if writeVpo {
		experiment.Vpo = update.Vpo
	}
	if err := s.groups.Replace(ctx, group); err != nil {
		return VpoResolution{}, err
	}

	resolution.State = experiment.State
	resolution.Vpo = experiment.Vpo
	resolution.Applied = true
	return resolution, nil
}

// CreateGroup assigns fresh ids, applies defaults, validates the suffix
// invariant and the program catalog, and persists the new aggregate.
func (s *Service) CreateGroup(ctx context.Context, group domain.ExperimentGroup) (domain.ExperimentGroup, error) {
	if domain.CarriesIDs(group) {
		return domain.ExperimentGroup{}, groupvalidator.New("ids are assigned server-side and must be empty on creation")
	}
	if err := s.checkCatalog(group); err != nil {
		return domain.ExperimentGroup{}, err
	}

	for i := range group.Experiments {
		applyExperimentDefaults(&group.Experiments[i], s.now())
	}
	domain.AssignIDs(&group)
	group.SubmittedAt = s.now()
	group.Version = 1

	if err := groupvalidator.ValidateGroup(group); err != nil {
		return domain.ExperimentGroup{}, err
	}
	if err := group.Validate(); err != nil {
		return domain.ExperimentGroup{}, groupvalidator.New(err.Error())
	}
	if err := s.groups.Insert(ctx, group); err != nil {
		return domain.ExperimentGroup{}, err
	}
	return group, nil
}

// UpdateGroup revalidates the suffix invariant and replaces the whole
// document. Ids are kept; the stored version must match.
func (s *Service) UpdateGroup(ctx context.Context, group domain.ExperimentGroup) error {
	if err := groupvalidator.ValidateGroup(group); err != nil {
		return err
	}
	if err := group.Validate(); err != nil {
		return groupvalidator.New(err.Error())
	}
	return s.groups.Replace(ctx, group)
}

// AddExperiments appends id-free experiments to an existing group.
func (s *Service) AddExperiments(ctx context.Context, groupID string, experiments []domain.Experiment) (domain.ExperimentGroup, error) {
	if len(experiments) == 0 {
		return domain.ExperimentGroup{}, groupvalidator.New("at least one experiment is required")
	}
	for _, experiment := range experiments {
		if domain.ExperimentCarriesIDs(experiment) {
			return domain.ExperimentGroup{}, groupvalidator.New("ids are assigned server-side and must be empty on creation")
		}
	}

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return domain.ExperimentGroup{}, err
	}
	for i := range experiments {
		applyExperimentDefaults(&experiments[i], s.now())
		domain.AssignExperimentIDs(&experiments[i])
		group.Experiments = append(group.Experiments, experiments[i])
	}

	if err := groupvalidator.ValidateGroup(group); err != nil {
		return domain.ExperimentGroup{}, err
	}
	if err := group.Validate(); err != nil {
		return domain.ExperimentGroup{}, groupvalidator.New(err.Error())
	}
	if err := s.groups.Replace(ctx, group); err != nil {
		return domain.ExperimentGroup{}, err
	}
	return group, nil
}

// SetExperimentArchived flips the soft-retirement flag.
func (s *Service) SetExperimentArchived(ctx context.Context, experimentID string, archived bool) error {
	group, err := s.groups.GetByExperimentID(ctx, experimentID)
	if err != nil {
		return err
	}
	experiment := group.ExperimentByID(experimentID)
	if experiment == nil {
		return repo.ErrNotFound
	}
	if experiment.Archived == archived {
		return nil
	}
	experiment.Archived = archived
	return s.groups.Replace(ctx, group)
}

// CancelExperiment drives every non-final record of the experiment to
// Canceled. Returns how many records changed.
func (s *Service) CancelExperiment(ctx context.Context, experimentID string) (int, error) {
	group, err := s.groups.GetByExperimentID(ctx, experimentID)
	if err != nil {
		return 0, err
	}
	experiment := group.ExperimentByID(experimentID)
	if experiment == nil {
		return 0, repo.ErrNotFound
	}

	now := s.now()
	canceled := 0
	for i := range experiment.Stages {
		stage := &experiment.Stages[i]
		if stage.Type == domain.StageTypeClass && stage.Class != nil {
			for j := range stage.Class.Conditions {
				record := &stage.Class.Conditions[j].ProcessRecord
				if !record.Status.IsFinal() {
					record.SetStatus(domain.ProcessStatusCanceled, now)
					canceled++
				}
			}
			continue
		}
		if record := stage.Record(); record != nil && !record.Status.IsFinal() {
			record.SetStatus(domain.ProcessStatusCanceled, now)
			canceled++
		}
	}

	if canceled == 0 {
		return 0, nil
	}
	if err := s.groups.Replace(ctx, group); err != nil {
		return 0, err
	}
	return canceled, nil
}

// MarkSubmittedToQueue records the handoff to the execution queue.
func (s *Service) MarkSubmittedToQueue(ctx context.Context, groupID string) error {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if group.SubmittedToQueue {
		return nil
	}
	group.SubmittedToQueue = true
	return s.groups.Replace(ctx, group)
}

func (s *Service) GetGroup(ctx context.Context, id string) (domain.ExperimentGroup, error) {
	return s.groups.Get(ctx, id)
}

func (s *Service) ListGroups(ctx context.Context, filter repo.GroupFilter) ([]domain.ExperimentGroup, error) {
	return s.groups.List(ctx, filter)
}

func (s *Service) checkCatalog(group domain.ExperimentGroup) error {
	if s.catalog == nil {
		return nil
	}
	family := strings.TrimSpace(group.TestProgram.Family)
	if _, ok := s.catalog.Family(family); !ok {
		return groupvalidator.New(fmt.Sprintf("unknown test program family %q", family))
	}
	for i, experiment := range group.Experiments {
		for j, stage := range experiment.Stages {
			if !s.catalog.AllowsStageType(family, stage.Type) {
				return groupvalidator.New(fmt.Sprintf(
					"experiments[%d].stages[%d]: stage type %q not allowed for family %q", i, j, stage.Type, family))
			}
		}
	}
	return nil
}

func applyExperimentDefaults(experiment *domain.Experiment, now time.Time) {
	if experiment.State == "" {
		experiment.State = domain.ExperimentStateDraft
	}
	for i := range experiment.Stages {
		stage := &experiment.Stages[i]
		if stage.Type == domain.StageTypeClass && stage.Class != nil {
			for j := range stage.Class.Conditions {
				applyRecordDefaults(&stage.Class.Conditions[j].ProcessRecord, now)
			}
			continue
		}
		if record := stage.Record(); record != nil {
			applyRecordDefaults(record, now)
		}
	}
}

func applyRecordDefaults(record *domain.ProcessRecord, now time.Time) {
	if record.Status == "" {
		record.Status = domain.ProcessStatusNotStarted
	}
	if record.ModifiedAt.IsZero() {
		record.ModifiedAt = now
	}
}

func commentValue(comment *string) string {
	if comment == nil {
		return ""
	}
	return *comment
}
