package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateSampleSet(SampleSet) (SampleSet, error)
	UpdateSampleSet(id string, mutator func(*SampleSet) error) (SampleSet, error)
	CreateMembership(Membership) (Membership, error)
	UpdateMembership(id string, mutator func(*Membership) error) (Membership, error)
	DeleteMembership(id string) error
	FindSampleSet(id string) (SampleSet, bool)
	CurrentMemberships(sampleSetID string) []Membership
	MembershipsAt(sampleSetID string, revision int) []Membership
	MembershipsForEnrollment(enrollmentID string) []Membership
	ActiveMembershipFor(enrollmentID string) (Membership, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// for simulate-mode planning.
type TransactionView interface {
	ListSampleSets() []SampleSet
	ListMemberships() []Membership
	FindSampleSet(id string) (SampleSet, bool)
	CurrentMemberships(sampleSetID string) []Membership
	HistoricalMemberships(sampleSetID string) []Membership
	MembershipsForEnrollment(enrollmentID string) []Membership
	ActiveMembershipFor(enrollmentID string) (Membership, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSampleSet(id string) (SampleSet, bool)
	GetSampleSetByUUID(uuid string) (SampleSet, bool)
	ListSampleSets() []SampleSet
	CurrentMemberships(sampleSetID string) []Membership
	HistoricalMemberships(sampleSetID string) []Membership
	ActiveMembershipFor(enrollmentID string) (Membership, bool)
}
