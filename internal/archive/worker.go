package archive

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"samplecore/pkg/domain"
)

// JobStatus describes the lifecycle stage of an archive request.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord tracks an archive request and its stored object.
type JobRecord struct {
	ID          string     `json:"id"`
	SampleSetID string     `json:"sample_set_id"`
	Revision    int        `json:"revision"`
	Key         string     `json:"key,omitempty"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	SizeBytes   int64      `json:"size_bytes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AuditLogger records archive audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for archived revisions.
type AuditEntry struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	SampleSetID string    `json:"sample_set_id"`
	Revision    int       `json:"revision"`
	Status      JobStatus `json:"status"`
	Note        string    `json:"note,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Worker archives frozen revision snapshots asynchronously. It satisfies the
// service's revision archiver hook: ArchiveRevision only enqueues, so the
// advancing request never waits on blob storage.
type Worker struct {
	store Store
	audit AuditLogger

	queue chan archiveTask
	mu    sync.RWMutex
	jobs  map[string]*JobRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type archiveTask struct {
	id       string
	snapshot domain.RevisionSnapshot
}

// NewWorker constructs an archive worker writing to the supplied store.
func NewWorker(store Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:  store,
		audit:  audit,
		queue:  make(chan archiveTask, 32),
		jobs:   make(map[string]*JobRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing archive requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// ArchiveRevision schedules the snapshot for archival and returns once queued.
func (w *Worker) ArchiveRevision(ctx context.Context, snapshot domain.RevisionSnapshot) error {
	if w.store == nil {
		return fmt.Errorf("archive store not configured")
	}
	if snapshot.SampleSetID == "" {
		return fmt.Errorf("sample set id required")
	}

	id := newID()
	now := time.Now().UTC()
	record := JobRecord{
		ID:          id,
		SampleSetID: snapshot.SampleSetID,
		Revision:    snapshot.Revision,
		Status:      JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:          newID(),
			Action:      "revision_archive",
			SampleSetID: snapshot.SampleSetID,
			Revision:    snapshot.Revision,
			Status:      JobStatusQueued,
			OccurredAt:  now,
		})
	}

	select {
	case w.queue <- archiveTask{id: id, snapshot: snapshot}:
	default:
		w.fail(id, "archive queue full")
		return fmt.Errorf("archive queue full")
	}
	return nil
}

// Job returns a snapshot of the job record.
func (w *Worker) Job(id string) (JobRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return JobRecord{}, false
	}
	return *record, true
}

// Jobs returns snapshots of all known job records.
func (w *Worker) Jobs() []JobRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]JobRecord, 0, len(w.jobs))
	for _, record := range w.jobs {
		out = append(out, *record)
	}
	return out
}

// Key returns the object key used for a sample set revision.
func Key(snapshot domain.RevisionSnapshot) string {
	ref := snapshot.UUID
	if ref == "" {
		ref = snapshot.SampleSetID
	}
	return fmt.Sprintf("sample-sets/%s/revision-%05d.json", ref, snapshot.Revision)
}

func (w *Worker) process(task archiveTask) {
	w.updateStatus(task.id, JobStatusRunning, "")

	payload, err := json.Marshal(task.snapshot)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("encode snapshot: %v", err))
		return
	}
	key := Key(task.snapshot)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"sample_set": task.snapshot.SampleSetID,
			"revision":   fmt.Sprintf("%d", task.snapshot.Revision),
		},
	})
	if err != nil {
		w.fail(task.id, fmt.Sprintf("store snapshot: %v", err))
		return
	}
	w.complete(task.id, key, info.Size)
}

func (w *Worker) updateStatus(id string, status JobStatus, note string) {
	now := time.Now().UTC()
	var snapshot JobRecord
	ok := false
	w.mu.Lock()
	if record, found := w.jobs[id]; found {
		record.Status = status
		record.Error = note
		record.UpdatedAt = now
		if status == JobStatusSucceeded || status == JobStatusFailed {
			record.CompletedAt = &now
		}
		snapshot = *record
		ok = true
	}
	w.mu.Unlock()
	if ok && w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:          newID(),
			Action:      "revision_archive",
			SampleSetID: snapshot.SampleSetID,
			Revision:    snapshot.Revision,
			Status:      status,
			Note:        note,
			OccurredAt:  now,
		})
	}
}

func (w *Worker) complete(id, key string, size int64) {
	w.mu.Lock()
	if record, found := w.jobs[id]; found {
		record.Key = key
		record.SizeBytes = size
	}
	w.mu.Unlock()
	w.updateStatus(id, JobStatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	w.updateStatus(id, JobStatusFailed, reason)
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
