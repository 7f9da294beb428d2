package domain

import (
	"context"
	"time"
)

// EnrollmentLookup is the read-only provider of enrollment summaries. The
// engine never writes through it; enrollment lifecycle belongs to the wider
// system.
type EnrollmentLookup interface {
	// GetMany resolves enrollment ids to summaries. Unknown ids are simply
	// absent from the result; callers decide whether that is an error.
	GetMany(ctx context.Context, ids []string) ([]EnrollmentSummary, error)
}

// ProgramLookup resolves sampling-relevant program attributes, including the
// checklist question ids a program cares about.
type ProgramLookup interface {
	Get(ctx context.Context, programID string) (ProgramSummary, bool, error)
}

// AnswerLookup is the read-only provider of answer records contributed by a
// home. With directOnly set, only answers given directly for the home are
// returned, excluding anything it previously received via propagation.
type AnswerLookup interface {
	ContributedAnswers(ctx context.Context, enrollmentID string, questionIDs []string, directOnly bool) ([]AnswerRef, error)
}

// CertificationGate is the consumer-facing certification collaborator. The
// engine only schedules its work; completion is never awaited.
type CertificationGate interface {
	// CanCertify reports whether the actor may certify the enrollment.
	CanCertify(ctx context.Context, enrollmentID, actorID string) bool
	// Refresh triggers recomputation of derived certification state for the
	// enrollment and its sample set siblings. Fire and forget.
	Refresh(enrollmentID string)
	// Certify processes certification of a single enrollment and returns any
	// per-home error strings.
	Certify(ctx context.Context, enrollmentID, actorID string, date time.Time) []string
}
