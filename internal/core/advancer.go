package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"samplecore/pkg/domain"
)

// Advance freezes the current revision of a sample set and opens the next one.
// Answers contributed by the current test homes are shared onto the sampled
// rows first, so the frozen revision records exactly what was inherited; the
// duplicated rows carry those answers into the new revision. Propagation is
// first-time only, which makes advancing twice in a row share nothing new.
func (s *Service) Advance(ctx context.Context, sampleSetID string) (SampleSet, error) {
	ctx, done := s.observe(ctx, "advance")

	var advanced SampleSet
	var frozen domain.RevisionSnapshot
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ss, ok := tx.FindSampleSet(sampleSetID)
		if !ok {
			return domain.ErrNotFound{Entity: EntitySampleSet, ID: sampleSetID}
		}
		nextRevision := ss.Revision + 1

		// Rows already sitting at the target revision can only be leftovers
		// from an interrupted write. Clear them before duplicating.
		for _, orphan := range tx.MembershipsAt(sampleSetID, nextRevision) {
			s.logger.Warn("removing orphaned membership at target revision",
				"sample_set", sampleSetID,
				"enrollment", orphan.EnrollmentID,
				"revision", nextRevision)
			if err := tx.DeleteMembership(orphan.ID); err != nil {
				return err
			}
		}

		current := tx.CurrentMemberships(sampleSetID)

		if err := s.propagateAnswers(ctx, tx, current); err != nil {
			return err
		}

		// Re-read so duplicates carry the freshly shared answers.
		current = tx.CurrentMemberships(sampleSetID)
		for _, m := range current {
			if _, err := tx.CreateMembership(Membership{
				SampleSetID:  m.SampleSetID,
				EnrollmentID: m.EnrollmentID,
				Revision:     nextRevision,
				IsActive:     true,
				IsTestHome:   m.IsTestHome,
				AnswerIDs:    append([]string(nil), m.AnswerIDs...),
			}); err != nil {
				return err
			}
			if _, err := tx.UpdateMembership(m.ID, func(row *Membership) error {
				row.IsActive = false
				return nil
			}); err != nil {
				return err
			}
		}

		updated, err := tx.UpdateSampleSet(sampleSetID, func(row *SampleSet) error {
			row.Revision = nextRevision
			return nil
		})
		if err != nil {
			return err
		}
		advanced = updated

		frozen = domain.RevisionSnapshot{
			SampleSetID: ss.ID,
			UUID:        ss.UUID,
			AltName:     ss.AltName,
			Revision:    ss.Revision,
			FrozenAt:    time.Now().UTC(),
			Memberships: current,
		}
		return nil
	})
	if err != nil {
		done(err)
		return SampleSet{}, err
	}

	s.logger.Info("sample set advanced",
		"sample_set", sampleSetID,
		"revision", advanced.Revision,
		"memberships", len(frozen.Memberships))

	if s.archiver != nil {
		if err := s.archiver.ArchiveRevision(ctx, frozen); err != nil {
			s.logger.Warn("revision archive failed",
				"sample_set", sampleSetID,
				"revision", frozen.Revision,
				"err", err)
		}
	}
	done(nil)
	return advanced, nil
}

// propagateAnswers shares the union of answers contributed directly by the
// current test homes onto the current sampled rows. An answer is skipped for a
// home that already holds it on any of its membership rows or that answered
// the question directly.
func (s *Service) propagateAnswers(ctx context.Context, tx domain.Transaction, current []Membership) error {
	var testRows, sampledRows []Membership
	for _, m := range current {
		if m.IsTestHome {
			testRows = append(testRows, m)
		} else {
			sampledRows = append(sampledRows, m)
		}
	}
	if len(testRows) == 0 || len(sampledRows) == 0 {
		return nil
	}

	questionIDs, err := s.memberQuestionIDs(ctx, current)
	if err != nil {
		return err
	}

	// Union of direct test-home answers, deduplicated per question: the first
	// test home to answer a question supplies the shared answer.
	var shared []AnswerRef
	seenQuestions := make(map[string]struct{})
	for _, test := range testRows {
		answers, err := s.answers.ContributedAnswers(ctx, test.EnrollmentID, questionIDs, true)
		if err != nil {
			return fmt.Errorf("resolve test answers for %s: %w", test.EnrollmentID, err)
		}
		for _, a := range answers {
			if _, ok := seenQuestions[a.QuestionID]; ok {
				continue
			}
			seenQuestions[a.QuestionID] = struct{}{}
			shared = append(shared, a)
		}
	}
	if len(shared) == 0 {
		return nil
	}

	for _, sampled := range sampledRows {
		held := make(map[string]struct{})
		for _, row := range tx.MembershipsForEnrollment(sampled.EnrollmentID) {
			for _, id := range row.AnswerIDs {
				held[id] = struct{}{}
			}
		}
		direct, err := s.answers.ContributedAnswers(ctx, sampled.EnrollmentID, questionIDs, true)
		if err != nil {
			return fmt.Errorf("resolve direct answers for %s: %w", sampled.EnrollmentID, err)
		}
		answeredDirectly := make(map[string]struct{}, len(direct))
		for _, a := range direct {
			answeredDirectly[a.QuestionID] = struct{}{}
		}

		var inherited []string
		for _, a := range shared {
			if _, ok := held[a.ID]; ok {
				continue
			}
			if _, ok := answeredDirectly[a.QuestionID]; ok {
				continue
			}
			inherited = append(inherited, a.ID)
		}
		if len(inherited) == 0 {
			continue
		}
		s.logger.Debug("propagating answers to sampled home",
			"enrollment", sampled.EnrollmentID,
			"count", len(inherited))
		if _, err := tx.UpdateMembership(sampled.ID, func(row *Membership) error {
			row.AnswerIDs = append(row.AnswerIDs, inherited...)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// memberQuestionIDs unions the question ids of every program used by the
// supplied memberships.
func (s *Service) memberQuestionIDs(ctx context.Context, members []Membership) ([]string, error) {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.EnrollmentID)
	}
	summaries, err := s.enrollmentSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	programIDs := make(map[string]struct{})
	for _, e := range summaries {
		if e.ProgramID != nil && *e.ProgramID != "" {
			programIDs[*e.ProgramID] = struct{}{}
		}
	}

	questionSet := make(map[string]struct{})
	for programID := range programIDs {
		program, found, err := s.programs.Get(ctx, programID)
		if err != nil {
			return nil, fmt.Errorf("resolve program %s: %w", programID, err)
		}
		if !found {
			continue
		}
		for _, q := range program.QuestionIDs {
			questionSet[q] = struct{}{}
		}
	}
	questions := sortedKeys(questionSet)
	return questions, nil
}

// CanBeAdvanced reports whether the sample set has test homes providing
// answers and none of those answers is an uncorrected failure.
func (s *Service) CanBeAdvanced(ctx context.Context, sampleSetID string) (bool, error) {
	current := s.store.CurrentMemberships(sampleSetID)
	hasTest := false
	for _, m := range current {
		if !m.IsTestHome {
			continue
		}
		hasTest = true
		answers, err := s.answers.ContributedAnswers(ctx, m.EnrollmentID, nil, true)
		if err != nil {
			return false, fmt.Errorf("resolve test answers for %s: %w", m.EnrollmentID, err)
		}
		for _, a := range answers {
			if a.IsFailure && !a.FailureReviewed {
				return false, nil
			}
		}
	}
	return hasTest, nil
}

// CanBeCertified reports whether the set can advance and at least one member
// is still uncertified.
func (s *Service) CanBeCertified(ctx context.Context, sampleSetID string) (bool, error) {
	ok, err := s.CanBeAdvanced(ctx, sampleSetID)
	if err != nil || !ok {
		return false, err
	}
	current := s.store.CurrentMemberships(sampleSetID)
	ids := make([]string, 0, len(current))
	for _, m := range current {
		ids = append(ids, m.EnrollmentID)
	}
	summaries, err := s.enrollmentSummaries(ctx, ids)
	if err != nil {
		return false, err
	}
	for _, e := range summaries {
		if !e.IsCertified {
			return true, nil
		}
	}
	return false, nil
}

// Certify advances the sample set, then asks the gate to certify every member
// of the new revision, collecting per-home failures into the report. The
// confirm date is recorded only when every member certified cleanly.
func (s *Service) Certify(ctx context.Context, sampleSetID, actorID string, date time.Time) (domain.CertifyReport, error) {
	ctx, done := s.observe(ctx, "certify")
	var report domain.CertifyReport

	canCertify, err := s.CanBeCertified(ctx, sampleSetID)
	if err != nil {
		done(err)
		return report, err
	}
	if !canCertify {
		report.Error = append(report.Error, "sample set is not in a certifiable state")
		done(nil)
		return report, nil
	}

	if _, err := s.Advance(ctx, sampleSetID); err != nil {
		done(err)
		return report, err
	}

	current := s.store.CurrentMemberships(sampleSetID)
	sort.Slice(current, func(i, j int) bool { return current[i].EnrollmentID < current[j].EnrollmentID })
	certified := 0
	for _, m := range current {
		errs := s.gate.Certify(ctx, m.EnrollmentID, actorID, date)
		if len(errs) > 0 {
			for _, msg := range errs {
				report.Error = append(report.Error, fmt.Sprintf("%s: %s", m.EnrollmentID, msg))
			}
			continue
		}
		certified++
		report.Info = append(report.Info, fmt.Sprintf("certified %s", m.EnrollmentID))
	}

	if len(report.Error) == 0 {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, updateErr := tx.UpdateSampleSet(sampleSetID, func(row *SampleSet) error {
				d := date
				row.ConfirmDate = &d
				return nil
			})
			return updateErr
		})
		if err != nil {
			done(err)
			return report, err
		}
	}

	s.logger.Info("sample set certification run finished",
		"sample_set", sampleSetID,
		"certified", certified,
		"errors", len(report.Error))
	done(nil)
	return report, nil
}

// CompletionPercentage reports the share (0..100) of the test-home programs'
// questions answered directly by the current test homes. Sampled homes only
// receive answers; their programs never widen the denominator.
func (s *Service) CompletionPercentage(ctx context.Context, sampleSetID string) (float64, error) {
	current := s.store.CurrentMemberships(sampleSetID)
	var testRows []Membership
	for _, m := range current {
		if m.IsTestHome {
			testRows = append(testRows, m)
		}
	}
	if len(testRows) == 0 {
		return 0, nil
	}
	questions, err := s.memberQuestionIDs(ctx, testRows)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, nil
	}

	answered := make(map[string]struct{})
	for _, m := range testRows {
		answers, err := s.answers.ContributedAnswers(ctx, m.EnrollmentID, questions, true)
		if err != nil {
			return 0, fmt.Errorf("resolve test answers for %s: %w", m.EnrollmentID, err)
		}
		for _, a := range answers {
			answered[a.QuestionID] = struct{}{}
		}
	}
	return float64(len(answered)) / float64(len(questions)) * 100, nil
}
