// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by samplecore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySampleSet identifies a sample set record.
	EntitySampleSet EntityType = "sample_set"
	// EntityMembership identifies a sample set membership record.
	EntityMembership EntityType = "membership"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SampleSet groups homes placed in a common industry sample set. Test homes
// provide answers to the rest of the sampled homes by membership in the group.
type SampleSet struct {
	Base
	UUID           string     `json:"uuid"`
	AltName        string     `json:"alt_name,omitempty"`
	OwnerID        string     `json:"owner_id"`
	ConfirmDate    *time.Time `json:"confirm_date,omitempty"`
	Revision       int        `json:"revision"`
	IsMetroSampled bool       `json:"is_metro_sampled"`
}

// Membership tracks participation of one enrollment in a sample set at a
// specific revision. Answers provided by test homes are published to sampled
// homes via AnswerIDs. When an enrollment is removed from a sample set, only
// the row matching the current revision is deleted; rows from past revisions
// persist, holding answers the home gained while it was a member.
type Membership struct {
	Base
	SampleSetID  string   `json:"sample_set_id"`
	EnrollmentID string   `json:"enrollment_id"`
	Revision     int      `json:"revision"`
	IsActive     bool     `json:"is_active"`
	IsTestHome   bool     `json:"is_test_home"`
	AnswerIDs    []string `json:"answer_ids,omitempty"`
}

// HasAnswer reports whether the membership already holds the given answer ref.
func (m Membership) HasAnswer(answerID string) bool {
	for _, id := range m.AnswerIDs {
		if id == answerID {
			return true
		}
	}
	return false
}

// EnrollmentSummary is the read-only projection of a home's program enrollment
// provided by the external enrollment repository.
type EnrollmentSummary struct {
	ID            string  `json:"id"`
	BuilderID     *string `json:"builder_id"`
	ProgramID     *string `json:"program_id"`
	SubdivisionID *string `json:"subdivision_id"`
	MetroID       *string `json:"metro_id"`
	IsCertified   bool    `json:"is_certified"`
}

// ProgramSummary describes the sampling-relevant attributes of a certification
// program.
type ProgramSummary struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	AllowsSampling      bool     `json:"allows_sampling"`
	AllowsMetroSampling bool     `json:"allows_metro_sampling"`
	QuestionIDs         []string `json:"question_ids"`
}

// AnswerRef references one answer record contributed by a home.
type AnswerRef struct {
	ID              string `json:"id"`
	QuestionID      string `json:"question_id"`
	IsFailure       bool   `json:"is_failure"`
	FailureReviewed bool   `json:"failure_reviewed"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// ContractViolationError signals a caller bug (for example overlapping test
// and sampled id sets) rather than a legitimate business state. The offending
// condition is also surfaced as an error-level report message.
type ContractViolationError struct {
	Code    string
	Message string
}

func (e ContractViolationError) Error() string {
	return e.Message
}
