package groupvalidator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/waferline-labs/waferline-go/internal/domain"
)

// Suffixes disambiguate duplicated conditions on the production work order;
// the execution system accepts short alphanumeric codes only.
var suffixFormat = regexp.MustCompile(`^[A-Za-z0-9]{1,8}$`)

// ValidateGroup checks the VPO custom-suffix invariant for every experiment
// in the group. Runs on both creation and update requests.
func ValidateGroup(group domain.ExperimentGroup) error {
	issues := &ValidationError{}
	for i := range group.Experiments {
		validateExperiment(issues, fmt.Sprintf("experiments[%d]", i), group.Experiments[i])
	}
	return issues.OrNil()
}

// ValidateExperiment checks the suffix invariant for a single experiment.
func ValidateExperiment(experiment domain.Experiment) error {
	issues := &ValidationError{}
	validateExperiment(issues, "experiment", experiment)
	return issues.OrNil()
}

type conditionRef struct {
	stagePath string
	condition domain.Condition
}

func validateExperiment(issues *ValidationError, path string, experiment domain.Experiment) {
	partitions := make(map[domain.OperationKey][]conditionRef)
	order := make([]domain.OperationKey, 0)

	for i := range experiment.Stages {
		stage := experiment.Stages[i]
		if stage.Type != domain.StageTypeClass || stage.Class == nil {
			continue
		}
		stagePath := fmt.Sprintf("%s.stages[%d]", path, i)
		for _, condition := range stage.Class.Conditions {
			key := normalizedKey(condition)
			if _, seen := partitions[key]; !seen {
				order = append(order, key)
			}
			partitions[key] = append(partitions[key], conditionRef{stagePath: stagePath, condition: condition})
		}
	}

	for _, key := range order {
		refs := partitions[key]
		if len(refs) == 1 {
			ref := refs[0]
			if strings.TrimSpace(ref.condition.VpoCustomSuffix) != "" {
				issues.Add(fmt.Sprintf("%s: condition %s/%s is not duplicated and must not carry a vpo custom suffix",
					ref.stagePath, key.EngineeringID, key.LocationCode))
			}
			continue
		}
		validatePartition(issues, key, refs)
	}
}

func validatePartition(issues *ValidationError, key domain.OperationKey, refs []conditionRef) {
	empties := 0
	nonEmpty := make([]string, 0, len(refs))
	for _, ref := range refs {
		suffix := strings.TrimSpace(ref.condition.VpoCustomSuffix)
		if suffix == "" {
			empties++
			continue
		}
		nonEmpty = append(nonEmpty, suffix)
	}

	switch {
	case empties == 0:
		issues.Add(fmt.Sprintf("%s: duplicated conditions %s/%s must leave exactly one vpo custom suffix empty (found none)",
			refs[0].stagePath, key.EngineeringID, key.LocationCode))
		return
	case empties > 1:
		issues.Add(fmt.Sprintf("%s: duplicated conditions %s/%s carry %d empty vpo custom suffixes (exactly one allowed)",
			refs[0].stagePath, key.EngineeringID, key.LocationCode, empties))
		return
	}

	sort.Strings(nonEmpty)
	for i, suffix := range nonEmpty {
		if !suffixFormat.MatchString(suffix) {
			issues.Add(fmt.Sprintf("%s: duplicated conditions %s/%s carry malformed vpo custom suffix %q",
				refs[0].stagePath, key.EngineeringID, key.LocationCode, suffix))
			return
		}
		if i > 0 && nonEmpty[i-1] == suffix {
			issues.Add(fmt.Sprintf("%s: duplicated conditions %s/%s carry duplicate vpo custom suffix %q",
				refs[0].stagePath, key.EngineeringID, key.LocationCode, suffix))
			return
		}
	}
}

func normalizedKey(condition domain.Condition) domain.OperationKey {
	return domain.OperationKey{
		EngineeringID: strings.TrimSpace(condition.EngineeringID),
		LocationCode:  strings.TrimSpace(condition.LocationCode),
	}
}
