package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewSampleSizeRule returns the in-transaction rule enforcing the maximum
// number of memberships a sample set may hold at its current revision.
func NewSampleSizeRule(maxSize int) domain.Rule {
	if maxSize <= 0 {
		maxSize = DefaultMaxSampleSize
	}
	return sampleSizeRule{maxSize: maxSize}
}

type sampleSizeRule struct {
	maxSize int
}

func (sampleSizeRule) Name() string { return "sample_size" }

func (r sampleSizeRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, ss := range view.ListSampleSets() {
		count := len(view.CurrentMemberships(ss.ID))
		if count > r.maxSize {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "sample_size",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("sample set %s over size: %d/%d memberships", ss.ID, count, r.maxSize),
				Entity:   domain.EntitySampleSet,
				EntityID: ss.ID,
			})
		}
	}
	return res, nil
}
