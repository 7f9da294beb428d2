package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"samplecore/pkg/domain"
)

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var created domain.SampleSet
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		ss, err := tx.CreateSampleSet(domain.SampleSet{UUID: "uuid-1"})
		if err != nil {
			return err
		}
		created = ss
		_, err = tx.CreateMembership(domain.Membership{
			SampleSetID:  ss.ID,
			EnrollmentID: "e1",
			Revision:     ss.Revision,
			IsActive:     true,
			IsTestHome:   true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.GetSampleSet(created.ID)
	if !ok || got.UUID != "uuid-1" {
		t.Fatalf("expected hydrated sample set, got %+v ok=%v", got, ok)
	}
	members := reopened.CurrentMemberships(created.ID)
	if len(members) != 1 || members[0].EnrollmentID != "e1" || !members[0].IsTestHome {
		t.Fatalf("expected hydrated membership, got %+v", members)
	}
}

func TestFailedTransactionLeavesSnapshotUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateSampleSet(domain.SampleSet{UUID: "doomed"}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected transaction error")
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if sets := reopened.ListSampleSets(); len(sets) != 0 {
		t.Fatalf("aborted transaction must not be snapshotted, got %d sets", len(sets))
	}
}

func TestDefaultPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open with missing parent dirs: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("expected path %s, got %s", path, store.Path())
	}
}
