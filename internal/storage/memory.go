package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps observations in process. Data does not survive restarts;
// when maxRows is positive the oldest rows are dropped beyond that bound.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    []Observation
	nextID  int64
	maxRows int
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(maxRows int) *MemoryStore {
	return &MemoryStore{maxRows: maxRows}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// InsertObservations appends rows, keeping the log ordered by timestamp.
func (s *MemoryStore) InsertObservations(_ context.Context, obs []Observation) error {
	if err := validateAll(obs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range obs {
		s.nextID++
		o.ID = s.nextID
		o.Timestamp = o.Timestamp.UTC()
		o.Stations = cloneStations(o.Stations)

		// upper bound keeps insertion order among equal timestamps
		idx := sort.Search(len(s.rows), func(i int) bool {
			return s.rows[i].Timestamp.After(o.Timestamp)
		})
		s.rows = append(s.rows, Observation{})
		copy(s.rows[idx+1:], s.rows[idx:])
		s.rows[idx] = o
	}

	if s.maxRows > 0 && len(s.rows) > s.maxRows {
		s.rows = append([]Observation(nil), s.rows[len(s.rows)-s.maxRows:]...)
	}
	return nil
}

// LatestTimestamp returns the newest observation time, if any.
func (s *MemoryStore) LatestTimestamp(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rows) == 0 {
		return time.Time{}, false, nil
	}
	return s.rows[len(s.rows)-1].Timestamp, true, nil
}

// ListSince lists observations at or after since.
func (s *MemoryStore) ListSince(ctx context.Context, since time.Time) ([]Observation, error) {
	return s.ListObservations(ctx, Filter{Since: since})
}

// ListObservations lists every observation matching filter.
func (s *MemoryStore) ListObservations(ctx context.Context, filter Filter) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Observation, 0, len(s.rows))
	for _, o := range s.rows {
		if !filter.matches(o) {
			continue
		}
		o.Stations = cloneStations(o.Stations)
		out = append(out, o)
	}
	return out, nil
}

// CountObservations counts stored observations.
func (s *MemoryStore) CountObservations(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

// Reset drops every observation.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = nil
	s.nextID = 0
	return nil
}

var _ ObservationStore = (*MemoryStore)(nil)
