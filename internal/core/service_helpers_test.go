package core

import (
	"context"
	"sync"
	"time"

	"samplecore/internal/infra/persistence/memory"
	"samplecore/pkg/domain"
)

func strptr(s string) *string { return &s }

type fakeEnrollments struct {
	byID map[string]EnrollmentSummary
}

func (f *fakeEnrollments) GetMany(_ context.Context, ids []string) ([]EnrollmentSummary, error) {
	out := make([]EnrollmentSummary, 0, len(ids))
	for _, id := range ids {
		if e, ok := f.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePrograms struct {
	byID map[string]ProgramSummary
	err  error
}

func (f *fakePrograms) Get(_ context.Context, programID string) (ProgramSummary, bool, error) {
	if f.err != nil {
		return ProgramSummary{}, false, f.err
	}
	p, ok := f.byID[programID]
	return p, ok, nil
}

type fakeAnswers struct {
	byEnrollment map[string][]AnswerRef
}

func (f *fakeAnswers) ContributedAnswers(_ context.Context, enrollmentID string, questionIDs []string, _ bool) ([]AnswerRef, error) {
	answers := f.byEnrollment[enrollmentID]
	if questionIDs == nil {
		return append([]AnswerRef(nil), answers...), nil
	}
	wanted := make(map[string]struct{}, len(questionIDs))
	for _, q := range questionIDs {
		wanted[q] = struct{}{}
	}
	var out []AnswerRef
	for _, a := range answers {
		if _, ok := wanted[a.QuestionID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeGate struct {
	mu        sync.Mutex
	allow     bool
	refreshed []string
	certified []string
	failures  map[string][]string
}

func (f *fakeGate) CanCertify(_ context.Context, _, _ string) bool { return f.allow }

func (f *fakeGate) Refresh(enrollmentID string) {
	f.mu.Lock()
	f.refreshed = append(f.refreshed, enrollmentID)
	f.mu.Unlock()
}

func (f *fakeGate) Certify(_ context.Context, enrollmentID, _ string, _ time.Time) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if errs, ok := f.failures[enrollmentID]; ok {
		return errs
	}
	f.certified = append(f.certified, enrollmentID)
	return nil
}

func (f *fakeGate) refreshCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshed...)
}

type fixture struct {
	service     *Service
	store       *memory.Store
	enrollments *fakeEnrollments
	programs    *fakePrograms
	answers     *fakeAnswers
	gate        *fakeGate
}

// newFixture wires a service against the in-memory store with one builder,
// one program with two questions, and enrollments e1..e8 in subdivision s1.
func newFixture(opts ...Option) *fixture {
	enrollments := &fakeEnrollments{byID: map[string]EnrollmentSummary{}}
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7", "e8"} {
		enrollments.byID[id] = EnrollmentSummary{
			ID:            id,
			BuilderID:     strptr("b1"),
			ProgramID:     strptr("p1"),
			SubdivisionID: strptr("s1"),
		}
	}
	programs := &fakePrograms{byID: map[string]ProgramSummary{
		"p1": {ID: "p1", Name: "Program One", AllowsSampling: true, AllowsMetroSampling: true, QuestionIDs: []string{"q1", "q2"}},
	}}
	answers := &fakeAnswers{byEnrollment: map[string][]AnswerRef{}}
	gate := &fakeGate{allow: true}

	store := memory.NewStore(NewDefaultRulesEngine(0))
	service := NewService(store, Dependencies{
		Enrollments: enrollments,
		Programs:    programs,
		Answers:     answers,
		Gate:        gate,
	}, opts...)
	return &fixture{service: service, store: store, enrollments: enrollments, programs: programs, answers: answers, gate: gate}
}

func (f *fixture) setEnrollment(id string, e EnrollmentSummary) {
	e.ID = id
	f.enrollments.byID[id] = e
}

func (f *fixture) allMemberships() []Membership {
	var out []Membership
	_ = f.store.View(context.Background(), func(view domain.TransactionView) error {
		out = view.ListMemberships()
		return nil
	})
	return out
}
