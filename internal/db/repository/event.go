package repository

import (
	"context"
	"database/sql"
	"fmt"

	"toltec-dpdb/internal/domain"
)

// EventRepo appends to and reads the audit log.
type EventRepo struct {
	db DBTX
}

func NewEventRepo(db DBTX) *EventRepo {
	return &EventRepo{db: db}
}

// WithTx returns an EventRepo bound to tx.
func (r *EventRepo) WithTx(tx *sql.Tx) *EventRepo { return &EventRepo{db: tx} }

// Append writes e and returns its sequence number.
func (r *EventRepo) Append(ctx context.Context, e domain.Event) (int64, error) {
	payload, err := toJSON(e.Payload)
	if err != nil {
		return 0, err
	}
	var corr sql.NullString
	if e.CorrelationID != "" {
		corr = sql.NullString{String: e.CorrelationID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (event_type, entity_type, entity_id, correlation_id, payload, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.Type), e.EntityType, e.EntityID, corr, payload, formatTime(e.OccurredAt))
	if err != nil {
		return 0, fmt.Errorf("append event %s: %w", e.Type, err)
	}
	return res.LastInsertId()
}

// ListForEntity returns one entity's events in sequence order.
func (r *EventRepo) ListForEntity(ctx context.Context, entityType, entityID string) ([]domain.Event, error) {
	return r.query(ctx,
		eventSelect+` WHERE entity_type = ? AND entity_id = ? ORDER BY seq`, entityType, entityID)
}

// Since returns up to limit events with a sequence greater than seq.
func (r *EventRepo) Since(ctx context.Context, seq int64, limit int) ([]domain.Event, error) {
	return r.query(ctx, eventSelect+` WHERE seq > ? ORDER BY seq LIMIT ?`, seq, limit)
}

const eventSelect = `SELECT seq, event_type, entity_type, entity_id, COALESCE(correlation_id, ''), payload, occurred_at FROM event_log`

func (r *EventRepo) query(ctx context.Context, query string, args ...interface{}) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ, payload, occurred string
		if err := rows.Scan(&e.Seq, &typ, &e.EntityType, &e.EntityID, &e.CorrelationID, &payload, &occurred); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		e.OccurredAt = parseTime(occurred)
		if err := fromJSON(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("event %d payload: %w", e.Seq, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
