package store

import "merchant-admin/internal/models"

// Status is the lifecycle state of one merchant identifier in the store.
type Status int

const (
	StatusNotLoaded Status = iota
	StatusLoading
	StatusLoaded
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return "not_loaded"
	}
}

// Entry is the store's view of one identifier. Merchant is nil unless a
// fetch or edit has resolved it. Pending counts operations in flight.
type Entry struct {
	Merchant *models.Merchant
	Status   Status
	Pending  int
	Err      error
}

// Snapshot is an immutable copy of the store state at one version.
type Snapshot struct {
	version uint64
	entries map[string]Entry
}

var emptySnapshot = &Snapshot{entries: map[string]Entry{}}

func (s *Snapshot) Version() uint64 { return s.version }

// Merchant returns a copy of the record for id.
func (s *Snapshot) Merchant(id string) (*models.Merchant, bool) {
	e, ok := s.entries[id]
	if !ok || e.Merchant == nil {
		return nil, false
	}
	return e.Merchant.Clone(), true
}

func (s *Snapshot) Status(id string) Status {
	return s.entries[id].Status
}

// IsLoading reports whether any fetch, edit or delete for id is in flight.
func (s *Snapshot) IsLoading(id string) bool {
	return s.entries[id].Pending > 0
}

// Err is the error of the last failed operation on id, if it has not been
// superseded by a success.
func (s *Snapshot) Err(id string) error {
	return s.entries[id].Err
}

// Len is the number of merchant records held.
func (s *Snapshot) Len() int {
	n := 0
	for _, e := range s.entries {
		if e.Merchant != nil {
			n++
		}
	}
	return n
}

// NewSnapshot builds a snapshot from explicit entries. The store publishes
// its own snapshots; this exists for callers that need a fixed state.
func NewSnapshot(version uint64, entries map[string]Entry) *Snapshot {
	copied := make(map[string]Entry, len(entries))
	for id, e := range entries {
		copied[id] = e
	}
	return &Snapshot{version: version, entries: copied}
}
