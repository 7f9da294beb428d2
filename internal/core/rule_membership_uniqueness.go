package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewMembershipUniquenessRule returns the in-transaction rule enforcing that
// an enrollment is active in at most one sample set system-wide.
func NewMembershipUniquenessRule() domain.Rule {
	return membershipUniquenessRule{}
}

type membershipUniquenessRule struct{}

func (membershipUniquenessRule) Name() string { return "membership_uniqueness" }

func (membershipUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	active := make(map[string]string)

	res := domain.Result{}
	for _, m := range view.ListMemberships() {
		if !m.IsActive {
			continue
		}
		if other, ok := active[m.EnrollmentID]; ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "membership_uniqueness",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("enrollment %s is active in sample sets %s and %s", m.EnrollmentID, other, m.SampleSetID),
				Entity:   domain.EntityMembership,
				EntityID: m.ID,
			})
			continue
		}
		active[m.EnrollmentID] = m.SampleSetID
	}
	return res, nil
}
