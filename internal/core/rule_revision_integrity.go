package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewRevisionIntegrityRule returns the in-transaction rule keeping membership
// revisions consistent with their owning sample set: revisions are
// non-negative, never ahead of the sample set, and rows are active only at
// the current revision.
func NewRevisionIntegrityRule() domain.Rule {
	return revisionIntegrityRule{}
}

type revisionIntegrityRule struct{}

func (revisionIntegrityRule) Name() string { return "revision_integrity" }

func (revisionIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, m := range view.ListMemberships() {
		ss, ok := view.FindSampleSet(m.SampleSetID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "revision_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("membership %s references missing sample set %s", m.ID, m.SampleSetID),
				Entity:   domain.EntityMembership,
				EntityID: m.ID,
			})
			continue
		}
		if m.Revision < 0 || m.Revision > ss.Revision {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "revision_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("membership %s at revision %d outside sample set revision %d", m.ID, m.Revision, ss.Revision),
				Entity:   domain.EntityMembership,
				EntityID: m.ID,
			})
		}
		if m.IsActive && m.Revision != ss.Revision {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "revision_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("membership %s active at stale revision %d (current %d)", m.ID, m.Revision, ss.Revision),
				Entity:   domain.EntityMembership,
				EntityID: m.ID,
			})
		}
	}
	return res, nil
}
