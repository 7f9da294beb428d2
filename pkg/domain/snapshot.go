package domain

import "time"

// RevisionSnapshot captures the frozen composition of a sample set revision at
// the moment it was advanced. Snapshots are the durable audit record of which
// homes shared answers in a revision.
type RevisionSnapshot struct {
	SampleSetID string       `json:"sample_set_id"`
	UUID        string       `json:"uuid"`
	AltName     string       `json:"alt_name,omitempty"`
	Revision    int          `json:"revision"`
	FrozenAt    time.Time    `json:"frozen_at"`
	Memberships []Membership `json:"memberships"`
}
