package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"samplecore/pkg/domain"
)

// ModifyInput describes the desired final membership of a sample set. TestIDs
// and SampledIDs must be disjoint; together they are the complete target
// composition, not a delta.
type ModifyInput struct {
	// SampleSetID is empty when the sample set does not exist yet; the first
	// successful commit creates it.
	SampleSetID string
	// OwnerID and AltName seed a sample set created by this mutation.
	OwnerID string
	AltName string

	TestIDs    []string
	SampledIDs []string

	// Actor is used only for the certifiability check; it is never persisted.
	Actor string

	// Simulate computes the full report without acquiring write locks or
	// persisting anything.
	Simulate bool
}

// errCommitAborted unwinds the commit transaction when validation produced
// error findings; the report is still returned to the caller.
var errCommitAborted = errors.New("commit aborted by validation findings")

// mutationPlan is the working state shared between planning and applying.
type mutationPlan struct {
	sampleSet      SampleSet
	exists         bool
	keepRows       []Membership
	removeRows     []Membership
	movedRows      map[string]Membership
	addIDs         []string
	finalIDs       []string
	testIDs        map[string]struct{}
	isMetroSampled bool
	representative string
}

// ModifySampleSet is the sole entry point for changing what a sample set
// contains. The returned report is complete whether or not the commit
// happened. Validation findings are never Go errors; only caller-contract
// violations and collaborator failures surface as errors.
func (s *Service) ModifySampleSet(ctx context.Context, in ModifyInput) (MutationReport, error) {
	ctx, done := s.observe(ctx, "modify_sample_set")
	report := MutationReport{SampleSetID: in.SampleSetID}

	if overlap := intersect(in.TestIDs, in.SampledIDs); len(overlap) > 0 {
		msg := fmt.Sprintf("enrollments %v listed as both test and sampled", overlap)
		report.Append(LevelError, domain.CodeOverlappingRoles, msg)
		err := ContractViolationError{Code: domain.CodeOverlappingRoles, Message: msg}
		done(err)
		return report, err
	}

	if in.Simulate {
		err := s.store.View(ctx, func(view domain.TransactionView) error {
			var planErr error
			report, _, planErr = s.planMutation(ctx, view, in)
			return planErr
		})
		done(err)
		return report, err
	}

	var refreshTarget, committedID string
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var plan *mutationPlan
		var planErr error
		report, plan, planErr = s.planMutation(ctx, tx.Snapshot(), in)
		if planErr != nil {
			return planErr
		}
		if report.HasErrors() {
			return errCommitAborted
		}
		ssID, applyErr := s.applyPlan(tx, in, plan)
		if applyErr != nil {
			return applyErr
		}
		committedID = ssID
		refreshTarget = plan.representative
		return nil
	})
	if errors.Is(err, errCommitAborted) {
		done(nil)
		return report, nil
	}
	if err != nil {
		done(err)
		return report, err
	}

	report.Committed = true
	report.SampleSetID = committedID
	s.logger.Info("sample set mutation committed",
		"sample_set", report.SampleSetID,
		"added", len(report.Plan.Added),
		"removed", len(report.Plan.Removed),
		"moved", len(report.Plan.Moved))

	// Siblings share recomputed state through the gate; one representative
	// is enough. Fire and forget, outside the transaction boundary.
	if refreshTarget != "" && s.gate != nil {
		s.gate.Refresh(refreshTarget)
	}
	done(nil)
	return report, nil
}

// planMutation computes the plan and the full report against a snapshot view.
// It performs no writes and is shared verbatim by the simulate and commit
// paths.
func (s *Service) planMutation(ctx context.Context, view domain.TransactionView, in ModifyInput) (MutationReport, *mutationPlan, error) {
	report := MutationReport{SampleSetID: in.SampleSetID, Plan: MutationPlan{Moved: map[string]string{}}}
	plan := &mutationPlan{movedRows: map[string]Membership{}, testIDs: toSet(in.TestIDs)}

	targetIDs := toSet(in.TestIDs)
	for _, id := range in.SampledIDs {
		targetIDs[id] = struct{}{}
	}

	var current []Membership
	if in.SampleSetID != "" {
		ss, ok := view.FindSampleSet(in.SampleSetID)
		if !ok {
			return report, nil, domain.ErrNotFound{Entity: EntitySampleSet, ID: in.SampleSetID}
		}
		plan.sampleSet = ss
		plan.exists = true
		current = view.CurrentMemberships(in.SampleSetID)
	}

	keepIDs := make(map[string]struct{})
	for _, m := range current {
		if _, wanted := targetIDs[m.EnrollmentID]; wanted {
			keepIDs[m.EnrollmentID] = struct{}{}
			plan.keepRows = append(plan.keepRows, m)
		} else {
			plan.removeRows = append(plan.removeRows, m)
		}
	}

	var addIDs []string
	for id := range targetIDs {
		if _, kept := keepIDs[id]; !kept {
			addIDs = append(addIDs, id)
		}
	}
	sort.Strings(addIDs)
	plan.addIDs = addIDs

	// Active uses of the added enrollments elsewhere become "moved": their
	// old rows are detached, never deleted, as part of commit.
	for _, id := range addIDs {
		if m, ok := view.ActiveMembershipFor(id); ok && m.SampleSetID != in.SampleSetID {
			plan.movedRows[id] = m
			report.Plan.Moved[id] = m.SampleSetID
		}
	}

	finalIDs := make([]string, 0, len(keepIDs)+len(addIDs))
	for id := range keepIDs {
		finalIDs = append(finalIDs, id)
	}
	finalIDs = append(finalIDs, addIDs...)
	sort.Strings(finalIDs)
	plan.finalIDs = finalIDs
	if len(finalIDs) > 0 {
		plan.representative = finalIDs[0]
	}

	report.Plan.Unchanged = sortedKeys(keepIDs)
	report.Plan.Added = addIDs
	for _, m := range plan.removeRows {
		report.Plan.Removed = append(report.Plan.Removed, m.EnrollmentID)
	}
	sort.Strings(report.Plan.Removed)

	summaries, err := s.enrollmentSummaries(ctx, finalIDs)
	if err != nil {
		return report, nil, err
	}
	final := make([]EnrollmentSummary, 0, len(finalIDs))
	var missing []string
	for _, id := range finalIDs {
		e, ok := summaries[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		final = append(final, e)
	}
	if len(missing) > 0 {
		msg := fmt.Sprintf("unknown enrollments %v", missing)
		report.Append(LevelError, domain.CodeUnknownEnrollment, msg)
		return report, nil, ContractViolationError{Code: domain.CodeUnknownEnrollment, Message: msg}
	}

	// Size cap is checked first; on violation the report is returned with no
	// further findings and commit never happens.
	if len(finalIDs) > s.maxSampleSize {
		report.Append(LevelError, domain.CodeSampleSetFull,
			fmt.Sprintf("new configuration has too many items (%d), maximum is %d", len(finalIDs), s.maxSampleSize))
		return report, plan, nil
	}

	if err := s.validateConsistency(ctx, &report, plan, final); err != nil {
		return report, nil, err
	}
	s.validateCoverage(&report, in, current)

	report.IsCertifiable = s.computeCertifiable(ctx, report, in, final)
	return report, plan, nil
}

// validateConsistency runs discovery over the final composition and records
// program, metro, and builder findings. A program lookup failure aborts the
// mutation; committing without the metro findings would hide real conflicts.
func (s *Service) validateConsistency(ctx context.Context, report *MutationReport, plan *mutationPlan, final []EnrollmentSummary) error {
	programRes := domain.DiscoverProgram(final)
	isMetroSampled := domain.DiscoverIsMetroSampled(final)
	plan.isMetroSampled = isMetroSampled
	report.IsMetroSampled = isMetroSampled

	switch programRes.State() {
	case domain.DiscoveryConflict:
		// Mixed programs are permitted when their question sets overlap;
		// flagged so the operator can confirm.
		report.Append(LevelInfo, domain.CodeMismatchedPrograms,
			"homes in the new configuration use more than one program")
	case domain.DiscoveryUnanimous:
		programID, _ := programRes.Value()
		report.ProgramID = &programID
		program, found, err := s.programs.Get(ctx, programID)
		if err != nil {
			return fmt.Errorf("resolve program %s: %w", programID, err)
		}
		if found {
			if !program.AllowsMetroSampling && isMetroSampled {
				report.Append(LevelWarning, domain.CodeMetroUnsupported,
					fmt.Sprintf("program %s does not support metro sampling", program.Name))
			} else if program.AllowsMetroSampling && isMetroSampled && (!plan.exists || !plan.sampleSet.IsMetroSampled) {
				report.Append(LevelInfo, domain.CodeUsingMetro, "this configuration uses metro sampling")
			}
		}
	}

	if isMetroSampled {
		if metros := domain.UsedMetros(final); len(metros) > 1 {
			report.Append(LevelError, domain.CodeMismatchedMetros,
				"homes sampled across subdivisions must share one metro region")
		}
	}

	builderRes := domain.DiscoverBuilder(final)
	switch builderRes.State() {
	case domain.DiscoveryConflict:
		report.Append(LevelError, domain.CodeMismatchedBuilders,
			"a sample set may never span more than one builder")
	case domain.DiscoveryUnanimous:
		builderID, _ := builderRes.Value()
		report.BuilderID = &builderID
	case domain.DiscoveryNone:
		if len(final) > 0 {
			s.logger.Warn("no builders specified by homes", "enrollments", len(final))
		}
	}
	return nil
}

// validateCoverage records notices about the test/sampled balance of this
// particular mutation.
func (s *Service) validateCoverage(report *MutationReport, in ModifyInput, current []Membership) {
	currentHasTest := false
	currentHasSampled := false
	for _, m := range current {
		if m.IsTestHome {
			currentHasTest = true
		} else {
			currentHasSampled = true
		}
	}

	if len(in.TestIDs) == 0 {
		if !currentHasTest {
			report.Append(LevelWarning, domain.CodeNoTestHomes,
				"the sample set has no test homes providing answers")
		} else {
			report.Append(LevelDebug, domain.CodeOnlySampledHomes,
				"only sampled homes were provided for this mutation")
		}
	}
	if len(in.SampledIDs) == 0 && len(in.TestIDs) > 0 {
		if !currentHasSampled {
			report.Append(LevelDebug, domain.CodeNoSampledHomes,
				"the sample set has no sampled homes receiving answers")
		} else {
			report.Append(LevelDebug, domain.CodeOnlyTestHomes,
				"only test homes were provided for this mutation")
		}
	}
}

// computeCertifiable reports whether the final group may certify: not already
// fully certified, no blocking findings, and the actor permitted on at least
// one member.
func (s *Service) computeCertifiable(ctx context.Context, report MutationReport, in ModifyInput, final []EnrollmentSummary) bool {
	if len(final) == 0 || report.HasErrors() {
		return false
	}
	allCertified := true
	for _, e := range final {
		if !e.IsCertified {
			allCertified = false
			break
		}
	}
	if allCertified {
		return false
	}
	if s.gate == nil {
		return false
	}
	for _, e := range final {
		if s.gate.CanCertify(ctx, e.ID, in.Actor) {
			return true
		}
	}
	return false
}

// applyPlan persists the computed plan within the running transaction and
// returns the id of the sample set it wrote to.
func (s *Service) applyPlan(tx domain.Transaction, in ModifyInput, plan *mutationPlan) (string, error) {
	ss := plan.sampleSet
	if !plan.exists {
		created, err := tx.CreateSampleSet(SampleSet{
			UUID:    uuid.NewString(),
			AltName: in.AltName,
			OwnerID: in.OwnerID,
		})
		if err != nil {
			return "", err
		}
		ss = created
	}

	for _, m := range plan.removeRows {
		if err := tx.DeleteMembership(m.ID); err != nil {
			return "", err
		}
	}

	for _, m := range plan.movedRows {
		if _, err := tx.UpdateMembership(m.ID, func(row *Membership) error {
			row.IsActive = false
			return nil
		}); err != nil {
			return "", err
		}
	}

	for _, m := range plan.keepRows {
		_, isTest := plan.testIDs[m.EnrollmentID]
		if _, err := tx.UpdateMembership(m.ID, func(row *Membership) error {
			row.Revision = ss.Revision
			row.IsTestHome = isTest
			row.IsActive = true
			return nil
		}); err != nil {
			return "", err
		}
	}

	for _, id := range plan.addIDs {
		_, isTest := plan.testIDs[id]
		if _, err := tx.CreateMembership(Membership{
			SampleSetID:  ss.ID,
			EnrollmentID: id,
			Revision:     ss.Revision,
			IsTestHome:   isTest,
			IsActive:     true,
		}); err != nil {
			return "", err
		}
	}

	if _, err := tx.UpdateSampleSet(ss.ID, func(row *SampleSet) error {
		row.IsMetroSampled = plan.isMetroSampled
		return nil
	}); err != nil {
		return "", err
	}

	return ss.ID, nil
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func intersect(a, b []string) []string {
	set := toSet(a)
	var out []string
	for _, id := range b {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
