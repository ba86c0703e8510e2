package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"toltec-dpdb/internal/domain"
)

var _ domain.TelemetrySource = (*FakeTelemetry)(nil)

// FakeTelemetry is an in-memory telemetry table. Tests drive acquisition by
// calling Set; Calls counts Parts lookups.
type FakeTelemetry struct {
	mu      sync.Mutex
	records map[domain.ObservationKey]map[int]domain.PartRecord
	Calls   int
}

// NewFakeTelemetry creates an empty table.
func NewFakeTelemetry() *FakeTelemetry {
	return &FakeTelemetry{records: make(map[domain.ObservationKey]map[int]domain.PartRecord)}
}

// Set writes the row for one part, replacing any earlier row.
func (f *FakeTelemetry) Set(key domain.ObservationKey, part int, valid bool, at time.Time) {
	f.Put(domain.PartRecord{Key: key, Part: part, Valid: valid, Timestamp: at})
}

// Put stores a complete record, file name included.
func (f *FakeTelemetry) Put(rec domain.PartRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.records[rec.Key]
	if !ok {
		parts = make(map[int]domain.PartRecord)
		f.records[rec.Key] = parts
	}
	parts[rec.Part] = rec
}

// SetRange calls Set for parts [first, last].
func (f *FakeTelemetry) SetRange(key domain.ObservationKey, first, last int, valid bool, at time.Time) {
	for p := first; p <= last; p++ {
		f.Set(key, p, valid, at)
	}
}

func (f *FakeTelemetry) Parts(_ context.Context, key domain.ObservationKey) ([]domain.PartRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	out := make([]domain.PartRecord, 0, len(f.records[key]))
	for _, r := range f.records[key] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Part < out[j].Part })
	return out, nil
}

func (f *FakeTelemetry) Part(_ context.Context, key domain.ObservationKey, part int) (*domain.PartRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key][part]
	if !ok {
		return nil, domain.ErrNotFound("observation %s part %d not found", key, part)
	}
	return &r, nil
}

func (f *FakeTelemetry) Since(_ context.Context, t time.Time) ([]domain.PartRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PartRecord
	for _, parts := range f.records {
		for _, r := range parts {
			if !r.Timestamp.Before(t) {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *FakeTelemetry) Active(_ context.Context, limit int) ([]domain.ObservationKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ObservationKey
	for key, parts := range f.records {
		for _, r := range parts {
			if r.Valid {
				out = append(out, key)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Less(out[i]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeTelemetry) HasLater(_ context.Context, key domain.ObservationKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for other := range f.records {
		if other.Master == key.Master && key.Less(other) {
			return true, nil
		}
	}
	return false, nil
}
