// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"time"

	"toltec-dpdb/internal/domain"
)

var (
	_ domain.TelemetrySource  = (*MockTelemetrySource)(nil)
	_ domain.CompletionCursor = (*MockCompletionCursor)(nil)
	_ domain.SourceVerifier   = (*MockSourceVerifier)(nil)
)

// === Telemetry Source Mock ===

// MockTelemetrySource implements domain.TelemetrySource for testing.
type MockTelemetrySource struct {
	PartsFn    func(ctx context.Context, key domain.ObservationKey) ([]domain.PartRecord, error)
	PartFn     func(ctx context.Context, key domain.ObservationKey, part int) (*domain.PartRecord, error)
	SinceFn    func(ctx context.Context, t time.Time) ([]domain.PartRecord, error)
	ActiveFn   func(ctx context.Context, limit int) ([]domain.ObservationKey, error)
	HasLaterFn func(ctx context.Context, key domain.ObservationKey) (bool, error)
}

// Parts implements the interface method for testing.
func (m *MockTelemetrySource) Parts(ctx context.Context, key domain.ObservationKey) ([]domain.PartRecord, error) {
	if m.PartsFn != nil {
		return m.PartsFn(ctx, key)
	}
	panic("unexpected call to MockTelemetrySource.Parts")
}

// Part implements the interface method for testing.
func (m *MockTelemetrySource) Part(ctx context.Context, key domain.ObservationKey, part int) (*domain.PartRecord, error) {
	if m.PartFn != nil {
		return m.PartFn(ctx, key, part)
	}
	panic("unexpected call to MockTelemetrySource.Part")
}

// Since implements the interface method for testing.
func (m *MockTelemetrySource) Since(ctx context.Context, t time.Time) ([]domain.PartRecord, error) {
	if m.SinceFn != nil {
		return m.SinceFn(ctx, t)
	}
	panic("unexpected call to MockTelemetrySource.Since")
}

// Active implements the interface method for testing.
func (m *MockTelemetrySource) Active(ctx context.Context, limit int) ([]domain.ObservationKey, error) {
	if m.ActiveFn != nil {
		return m.ActiveFn(ctx, limit)
	}
	panic("unexpected call to MockTelemetrySource.Active")
}

// HasLater implements the interface method for testing.
func (m *MockTelemetrySource) HasLater(ctx context.Context, key domain.ObservationKey) (bool, error) {
	if m.HasLaterFn != nil {
		return m.HasLaterFn(ctx, key)
	}
	panic("unexpected call to MockTelemetrySource.HasLater")
}

// === Completion Cursor Mock ===

// MockCompletionCursor implements domain.CompletionCursor for testing.
type MockCompletionCursor struct {
	IsCompleteFn   func(ctx context.Context, key domain.ObservationKey) (bool, error)
	MarkCompleteFn func(ctx context.Context, key domain.ObservationKey, at time.Time) (bool, error)
}

// IsComplete implements the interface method for testing.
func (m *MockCompletionCursor) IsComplete(ctx context.Context, key domain.ObservationKey) (bool, error) {
	if m.IsCompleteFn != nil {
		return m.IsCompleteFn(ctx, key)
	}
	panic("unexpected call to MockCompletionCursor.IsComplete")
}

// MarkComplete implements the interface method for testing.
func (m *MockCompletionCursor) MarkComplete(ctx context.Context, key domain.ObservationKey, at time.Time) (bool, error) {
	if m.MarkCompleteFn != nil {
		return m.MarkCompleteFn(ctx, key, at)
	}
	panic("unexpected call to MockCompletionCursor.MarkComplete")
}

// === Source Verifier Mock ===

// MockSourceVerifier implements domain.SourceVerifier for testing.
type MockSourceVerifier struct {
	VerifyFn func(ctx context.Context, loc domain.Location, uri string) (domain.SourceVerification, error)
	Calls    []string // verified URIs, in call order
}

// Verify implements the interface method for testing.
func (m *MockSourceVerifier) Verify(ctx context.Context, loc domain.Location, uri string) (domain.SourceVerification, error) {
	m.Calls = append(m.Calls, uri)
	if m.VerifyFn != nil {
		return m.VerifyFn(ctx, loc, uri)
	}
	panic("unexpected call to MockSourceVerifier.Verify")
}
