// Package stats computes read-only projections over experiment groups:
// the rolling/completed classification and top-N frequency queries used
// by planning dashboards.
package stats

import (
	"context"
	"sort"

	"github.com/waferline-labs/waferline-go/internal/domain"
	"github.com/waferline-labs/waferline-go/internal/repo"
)

type Service struct {
	groups repo.GroupRepository
}

func New(groupRepo repo.GroupRepository) *Service {
	if groupRepo == nil {
		return nil
	}
	return &Service{groups: groupRepo}
}

// Classify reports whether a group still carries unfinished work.
func (s *Service) Classify(ctx context.Context, groupID string) (domain.Classification, error) {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return "", err
	}
	return domain.Classify(group), nil
}

// ValueCount is one entry of a frequency ranking.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// TopCommonLocationCodes ranks location codes across every class-stage
// condition of every group in the given program family. The family match is
// case-sensitive and exact. Archived experiments count too: the ranking
// reflects what was submitted, not what is still running.
func (s *Service) TopCommonLocationCodes(ctx context.Context, programFamily string, n int) ([]ValueCount, error) {
	return s.topConditionValues(ctx, programFamily, n, func(c domain.Condition) string {
		return c.LocationCode
	})
}

// TopCommonEngineeringIDs ranks engineering ids the same way.
func (s *Service) TopCommonEngineeringIDs(ctx context.Context, programFamily string, n int) ([]ValueCount, error) {
	return s.topConditionValues(ctx, programFamily, n, func(c domain.Condition) string {
		return c.EngineeringID
	})
}

func (s *Service) topConditionValues(ctx context.Context, programFamily string, n int, key func(domain.Condition) string) ([]ValueCount, error) {
	if n <= 0 {
		return nil, nil
	}
	groups, err := s.groups.List(ctx, repo.GroupFilter{ProgramFamily: programFamily})
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, group := range groups {
		if group.TestProgram.Family != programFamily {
			continue
		}
		for _, experiment := range group.Experiments {
			for _, stage := range experiment.Stages {
				for _, condition := range stage.Conditions() {
					if value := key(condition); value != "" {
						counts[value]++
					}
				}
			}
		}
	}

	ranked := make([]ValueCount, 0, len(counts))
	for value, count := range counts {
		ranked = append(ranked, ValueCount{Value: value, Count: count})
	}
	// count descending, then value ascending so equal counts rank stably
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Value < ranked[j].Value
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked, nil
}
