package domain

import (
	"context"
	"time"
)

// TelemetrySource answers part-status lookups for multi-part observations.
// Implemented by telemetry.SQLSource and telemetry.HTTPClient.
type TelemetrySource interface {
	// Parts returns every record present for the observation, in part order.
	Parts(ctx context.Context, key ObservationKey) ([]PartRecord, error)
	// Part returns the record for one part, or a NotFoundError.
	Part(ctx context.Context, key ObservationKey, part int) (*PartRecord, error)
	// Since returns records stamped at or after t, oldest first.
	Since(ctx context.Context, t time.Time) ([]PartRecord, error)
	// Active returns keys with at least one valid part, newest first.
	Active(ctx context.Context, limit int) ([]ObservationKey, error)
	// HasLater reports whether any observation of the same master is newer than key.
	HasLater(ctx context.Context, key ObservationKey) (bool, error)
}

// CompletionCursor tracks which observations were already seen complete.
// MarkComplete is a compare-and-set: it returns true only for the first caller.
type CompletionCursor interface {
	IsComplete(ctx context.Context, key ObservationKey) (bool, error)
	MarkComplete(ctx context.Context, key ObservationKey, at time.Time) (bool, error)
}

// SourceVerifier checks whether a source's bytes are retrievable at a location.
// Implemented by objectstore.Verifier.
type SourceVerifier interface {
	Verify(ctx context.Context, loc Location, uri string) (SourceVerification, error)
}
