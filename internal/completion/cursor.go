package completion

import (
	"context"
	"sync"
	"time"

	"toltec-dpdb/internal/domain"
)

var _ domain.CompletionCursor = (*MemoryCursor)(nil)

// MemoryCursor is a process-local completion cursor.
type MemoryCursor struct {
	mu   sync.Mutex
	seen map[domain.ObservationKey]time.Time
}

// NewMemoryCursor creates an empty cursor.
func NewMemoryCursor() *MemoryCursor {
	return &MemoryCursor{seen: make(map[domain.ObservationKey]time.Time)}
}

func (c *MemoryCursor) IsComplete(_ context.Context, key domain.ObservationKey) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[key]
	return ok, nil
}

func (c *MemoryCursor) MarkComplete(_ context.Context, key domain.ObservationKey, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[key]; ok {
		return false, nil
	}
	c.seen[key] = at
	return true, nil
}
