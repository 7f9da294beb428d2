// Package memory provides the in-memory transactional store for the sampling
// domain. Durable backends wrap it and snapshot its state after each commit.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"samplecore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	SampleSet   = domain.SampleSet
	Membership  = domain.Membership
	RulesEngine = domain.RulesEngine
	Result      = domain.Result
	Change      = domain.Change
)

type memoryState struct {
	sampleSets  map[string]SampleSet
	memberships map[string]Membership
}

// Snapshot is the serializable form of the full store state.
type Snapshot struct {
	SampleSets  []SampleSet  `json:"sample_sets"`
	Memberships []Membership `json:"memberships"`
}

func newMemoryState() memoryState {
	return memoryState{
		sampleSets:  make(map[string]SampleSet),
		memberships: make(map[string]Membership),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		SampleSets:  make([]SampleSet, 0, len(state.sampleSets)),
		Memberships: make([]Membership, 0, len(state.memberships)),
	}
	for _, ss := range state.sampleSets {
		snap.SampleSets = append(snap.SampleSets, ss)
	}
	for _, m := range state.memberships {
		snap.Memberships = append(snap.Memberships, cloneMembership(m))
	}
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for _, ss := range snap.SampleSets {
		state.sampleSets[ss.ID] = ss
	}
	for _, m := range snap.Memberships {
		state.memberships[m.ID] = cloneMembership(m)
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.sampleSets {
		cloned.sampleSets[k] = v
	}
	for k, v := range s.memberships {
		cloned.memberships[k] = cloneMembership(v)
	}
	return cloned
}

func cloneMembership(m Membership) Membership {
	cp := m
	cp.AnswerIDs = append([]string(nil), m.AnswerIDs...)
	return cp
}

// Store provides an in-memory transactional store for the sampling domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState returns a snapshot of committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces committed state with the snapshot contents.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine returns the engine evaluated at commit time.
func (s *Store) RulesEngine() *RulesEngine {
	return s.engine
}

// NowFunc returns the store clock, exposed for tests.
func (s *Store) NowFunc() func() time.Time {
	return s.nowFn
}

// SetNowFunc overrides the store clock, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

// ListSampleSets returns all sample sets within the snapshot.
func (v transactionView) ListSampleSets() []SampleSet {
	out := make([]SampleSet, 0, len(v.state.sampleSets))
	for _, ss := range v.state.sampleSets {
		out = append(out, ss)
	}
	return out
}

// ListMemberships returns all membership rows within the snapshot.
func (v transactionView) ListMemberships() []Membership {
	out := make([]Membership, 0, len(v.state.memberships))
	for _, m := range v.state.memberships {
		out = append(out, cloneMembership(m))
	}
	return out
}

// FindSampleSet retrieves a sample set by ID from the snapshot.
func (v transactionView) FindSampleSet(id string) (SampleSet, bool) {
	ss, ok := v.state.sampleSets[id]
	return ss, ok
}

// CurrentMemberships returns the rows at the sample set's own revision.
func (v transactionView) CurrentMemberships(sampleSetID string) []Membership {
	return currentMemberships(v.state, sampleSetID)
}

// HistoricalMemberships returns the rows at revisions below the current one.
func (v transactionView) HistoricalMemberships(sampleSetID string) []Membership {
	ss, ok := v.state.sampleSets[sampleSetID]
	if !ok {
		return nil
	}
	var out []Membership
	for _, m := range v.state.memberships {
		if m.SampleSetID == sampleSetID && m.Revision < ss.Revision {
			out = append(out, cloneMembership(m))
		}
	}
	return out
}

// MembershipsForEnrollment returns every row the enrollment has ever had.
func (v transactionView) MembershipsForEnrollment(enrollmentID string) []Membership {
	var out []Membership
	for _, m := range v.state.memberships {
		if m.EnrollmentID == enrollmentID {
			out = append(out, cloneMembership(m))
		}
	}
	return out
}

// ActiveMembershipFor returns the single active row for the enrollment, if any.
func (v transactionView) ActiveMembershipFor(enrollmentID string) (Membership, bool) {
	return activeMembershipFor(v.state, enrollmentID)
}

func currentMemberships(state *memoryState, sampleSetID string) []Membership {
	ss, ok := state.sampleSets[sampleSetID]
	if !ok {
		return nil
	}
	var out []Membership
	for _, m := range state.memberships {
		// Detached rows stay behind at their old revision as inactive; they
		// are not part of the current composition.
		if m.SampleSetID == sampleSetID && m.Revision == ss.Revision && m.IsActive {
			out = append(out, cloneMembership(m))
		}
	}
	return out
}

func activeMembershipFor(state *memoryState, enrollmentID string) (Membership, bool) {
	for _, m := range state.memberships {
		if m.EnrollmentID == enrollmentID && m.IsActive {
			return cloneMembership(m), true
		}
	}
	return Membership{}, false
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to rules and planners.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// CreateSampleSet stores a new sample set within the transaction.
func (tx *transaction) CreateSampleSet(ss SampleSet) (SampleSet, error) {
	if ss.ID == "" {
		ss.ID = tx.store.newID()
	}
	if _, exists := tx.state.sampleSets[ss.ID]; exists {
		return SampleSet{}, domain.ErrAlreadyExists{Entity: domain.EntitySampleSet, ID: ss.ID}
	}
	ss.CreatedAt = tx.now
	ss.UpdatedAt = tx.now
	tx.state.sampleSets[ss.ID] = ss
	tx.recordChange(Change{Entity: domain.EntitySampleSet, Action: domain.ActionCreate, After: ss})
	return ss, nil
}

// UpdateSampleSet mutates a sample set using the provided mutator function.
func (tx *transaction) UpdateSampleSet(id string, mutator func(*SampleSet) error) (SampleSet, error) {
	current, ok := tx.state.sampleSets[id]
	if !ok {
		return SampleSet{}, domain.ErrNotFound{Entity: domain.EntitySampleSet, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return SampleSet{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.sampleSets[id] = current
	tx.recordChange(Change{Entity: domain.EntitySampleSet, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateMembership stores a new membership row within the transaction.
func (tx *transaction) CreateMembership(m Membership) (Membership, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.memberships[m.ID]; exists {
		return Membership{}, domain.ErrAlreadyExists{Entity: domain.EntityMembership, ID: m.ID}
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.memberships[m.ID] = cloneMembership(m)
	tx.recordChange(Change{Entity: domain.EntityMembership, Action: domain.ActionCreate, After: cloneMembership(m)})
	return cloneMembership(m), nil
}

// UpdateMembership mutates a membership row using the provided mutator.
func (tx *transaction) UpdateMembership(id string, mutator func(*Membership) error) (Membership, error) {
	current, ok := tx.state.memberships[id]
	if !ok {
		return Membership{}, domain.ErrNotFound{Entity: domain.EntityMembership, ID: id}
	}
	before := cloneMembership(current)
	if err := mutator(&current); err != nil {
		return Membership{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.memberships[id] = cloneMembership(current)
	tx.recordChange(Change{Entity: domain.EntityMembership, Action: domain.ActionUpdate, Before: before, After: cloneMembership(current)})
	return cloneMembership(current), nil
}

// DeleteMembership removes a membership row from the transaction state.
func (tx *transaction) DeleteMembership(id string) error {
	current, ok := tx.state.memberships[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityMembership, ID: id}
	}
	delete(tx.state.memberships, id)
	tx.recordChange(Change{Entity: domain.EntityMembership, Action: domain.ActionDelete, Before: cloneMembership(current)})
	return nil
}

// FindSampleSet retrieves a sample set by ID from the transaction state.
func (tx *transaction) FindSampleSet(id string) (SampleSet, bool) {
	ss, ok := tx.state.sampleSets[id]
	return ss, ok
}

// CurrentMemberships returns rows at the sample set's own revision.
func (tx *transaction) CurrentMemberships(sampleSetID string) []Membership {
	return currentMemberships(&tx.state, sampleSetID)
}

// MembershipsAt returns rows at the given revision.
func (tx *transaction) MembershipsAt(sampleSetID string, revision int) []Membership {
	var out []Membership
	for _, m := range tx.state.memberships {
		if m.SampleSetID == sampleSetID && m.Revision == revision {
			out = append(out, cloneMembership(m))
		}
	}
	return out
}

// MembershipsForEnrollment returns every row the enrollment has ever had.
func (tx *transaction) MembershipsForEnrollment(enrollmentID string) []Membership {
	var out []Membership
	for _, m := range tx.state.memberships {
		if m.EnrollmentID == enrollmentID {
			out = append(out, cloneMembership(m))
		}
	}
	return out
}

// ActiveMembershipFor returns the single active row for the enrollment, if any.
func (tx *transaction) ActiveMembershipFor(enrollmentID string) (Membership, bool) {
	return activeMembershipFor(&tx.state, enrollmentID)
}

// Read helpers ---------------------------------------------------------------

// GetSampleSet retrieves a sample set by ID from committed state.
func (s *Store) GetSampleSet(id string) (SampleSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.state.sampleSets[id]
	return ss, ok
}

// GetSampleSetByUUID retrieves a sample set by its stable external uuid.
func (s *Store) GetSampleSetByUUID(uuid string) (SampleSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ss := range s.state.sampleSets {
		if ss.UUID == uuid {
			return ss, true
		}
	}
	return SampleSet{}, false
}

// ListSampleSets returns all sample sets from committed state.
func (s *Store) ListSampleSets() []SampleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SampleSet, 0, len(s.state.sampleSets))
	for _, ss := range s.state.sampleSets {
		out = append(out, ss)
	}
	return out
}

// CurrentMemberships returns committed rows at the sample set's revision.
func (s *Store) CurrentMemberships(sampleSetID string) []Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return currentMemberships(&s.state, sampleSetID)
}

// HistoricalMemberships returns committed rows below the current revision.
func (s *Store) HistoricalMemberships(sampleSetID string) []Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.state.sampleSets[sampleSetID]
	if !ok {
		return nil
	}
	var out []Membership
	for _, m := range s.state.memberships {
		if m.SampleSetID == sampleSetID && m.Revision < ss.Revision {
			out = append(out, cloneMembership(m))
		}
	}
	return out
}

// ActiveMembershipFor returns the single active committed row, if any.
func (s *Store) ActiveMembershipFor(enrollmentID string) (Membership, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeMembershipFor(&s.state, enrollmentID)
}
