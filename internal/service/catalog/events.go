package catalog

import (
	"context"

	"toltec-dpdb/internal/domain"
)

// ListEvents returns the audit trail of one entity in write order.
func (s *Store) ListEvents(ctx context.Context, entityType, entityID string) ([]domain.Event, error) {
	return s.events().ListForEntity(ctx, entityType, entityID)
}

// EventsSince returns up to limit events with a sequence number above seq.
func (s *Store) EventsSince(ctx context.Context, seq int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = domain.DefaultMaxResults
	}
	return s.events().Since(ctx, seq, limit)
}

// RecordEvent appends a standalone event, for transitions that do not touch
// catalog tables, such as an observation becoming complete.
func (s *Store) RecordEvent(ctx context.Context, typ domain.EventType, entityType, entityID string, payload map[string]interface{}) error {
	return s.WithTx(ctx, "record event", func(tx *Tx) error {
		return tx.Emit(ctx, typ, entityType, entityID, payload)
	})
}
