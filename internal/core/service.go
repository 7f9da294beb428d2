package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"samplecore/pkg/domain"
)

// DefaultMaxSampleSize is the enforced maximum number of homes a sample set
// may hold at one revision unless the service is configured otherwise.
const DefaultMaxSampleSize = 7

// Dependencies bundles the external collaborators the engine consumes. All of
// them are read-only except the certification gate, whose work is only ever
// scheduled, never awaited.
type Dependencies struct {
	Enrollments domain.EnrollmentLookup
	Programs    domain.ProgramLookup
	Answers     domain.AnswerLookup
	Gate        domain.CertificationGate
}

// RevisionArchiver receives frozen revision snapshots after a successful
// advance. Implementations are expected to be asynchronous; failures are
// logged, never propagated into the advancing transaction.
type RevisionArchiver interface {
	ArchiveRevision(ctx context.Context, snapshot domain.RevisionSnapshot) error
}

// Service exposes the sample set membership, validation, and revision engine
// on top of a persistent store and the external collaborators.
type Service struct {
	store       domain.PersistentStore
	enrollments domain.EnrollmentLookup
	programs    domain.ProgramLookup
	answers     domain.AnswerLookup
	gate        domain.CertificationGate

	archiver      RevisionArchiver
	maxSampleSize int
	logger        *slog.Logger
	metrics       MetricsRecorder
	tracer        Tracer
}

// Option configures optional service behavior.
type Option func(*Service)

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics installs a metrics recorder observing service operations.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs a tracer wrapping service operations.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMaxSampleSize overrides the enforced maximum sample set size.
func WithMaxSampleSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.maxSampleSize = size
		}
	}
}

// WithRevisionArchiver installs an archiver receiving frozen revisions.
func WithRevisionArchiver(archiver RevisionArchiver) Option {
	return func(s *Service) {
		s.archiver = archiver
	}
}

// NewService constructs a service backed by the supplied store and collaborators.
func NewService(store domain.PersistentStore, deps Dependencies, opts ...Option) *Service {
	s := &Service{
		store:         store,
		enrollments:   deps.Enrollments,
		programs:      deps.Programs,
		answers:       deps.Answers,
		gate:          deps.Gate,
		maxSampleSize: DefaultMaxSampleSize,
		logger:        slog.Default(),
		metrics:       noopMetrics{},
		tracer:        noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// MaxSampleSize returns the enforced size cap.
func (s *Service) MaxSampleSize() int {
	return s.maxSampleSize
}

// CurrentMemberships returns the memberships at the sample set's revision.
func (s *Service) CurrentMemberships(sampleSetID string) []Membership {
	return s.store.CurrentMemberships(sampleSetID)
}

// HistoricalMemberships returns the memberships below the current revision.
func (s *Service) HistoricalMemberships(sampleSetID string) []Membership {
	return s.store.HistoricalMemberships(sampleSetID)
}

// ActiveMembershipFor returns the single active membership for an enrollment
// across all sample sets, if one exists.
func (s *Service) ActiveMembershipFor(enrollmentID string) (Membership, bool) {
	return s.store.ActiveMembershipFor(enrollmentID)
}

// GetSampleSet retrieves a sample set by id.
func (s *Service) GetSampleSet(id string) (SampleSet, bool) {
	return s.store.GetSampleSet(id)
}

// GetSampleSetByUUID retrieves a sample set by its stable external uuid.
func (s *Service) GetSampleSetByUUID(uuid string) (SampleSet, bool) {
	return s.store.GetSampleSetByUUID(uuid)
}

// observe wraps an operation with tracing and metrics. The returned func must
// be called exactly once with the operation outcome.
func (s *Service) observe(ctx context.Context, operation string) (context.Context, func(err error)) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	return ctx, func(err error) {
		span.End(err)
		s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	}
}

// enrollmentSummaries resolves ids through the enrollment lookup, failing on
// ids the collaborator does not know.
func (s *Service) enrollmentSummaries(ctx context.Context, ids []string) (map[string]EnrollmentSummary, error) {
	out := make(map[string]EnrollmentSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	summaries, err := s.enrollments.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve enrollments: %w", err)
	}
	for _, e := range summaries {
		out[e.ID] = e
	}
	return out, nil
}
