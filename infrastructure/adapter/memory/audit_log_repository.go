package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/domain/entity"
)

// AuditLogRepository keeps audit entries in process memory. It is used when
// no database is configured and in tests.
type AuditLogRepository struct {
	mu      sync.RWMutex
	entries []*entity.AuditLogEntry
	last    time.Time
	now     func() time.Time
}

var _ outbound.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{now: time.Now}
}

// NewAuditLogRepositoryWithClock is NewAuditLogRepository with an injected clock.
func NewAuditLogRepositoryWithClock(now func() time.Time) *AuditLogRepository {
	return &AuditLogRepository{now: now}
}

// Append assigns ID and a strictly increasing timestamp to entry and stores a copy.
func (r *AuditLogRepository) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC()
	if !ts.After(r.last) {
		ts = r.last.Add(time.Nanosecond)
	}
	r.last = ts

	entry.ID = uuid.NewString()
	entry.Timestamp = ts
	r.entries = append(r.entries, entry.Clone())
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter entity.AuditLogFilter) ([]*entity.AuditLogEntry, error) {
	filter = filter.Normalize()
	snap := r.snapshot()

	out := make([]*entity.AuditLogEntry, 0, filter.Limit)
	skipped := 0
	for i := len(snap) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if !filter.Matches(snap[i]) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, snap[i].Clone())
	}
	return out, ctx.Err()
}

func (r *AuditLogRepository) Stats(ctx context.Context, filter entity.AuditLogFilter) (*entity.AuditLogStats, error) {
	stats := entity.NewAuditLogStats()
	err := r.Walk(ctx, filter, func(e *entity.AuditLogEntry) error {
		stats.Add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Walk visits matching entries newest first.
func (r *AuditLogRepository) Walk(ctx context.Context, filter entity.AuditLogFilter, fn func(*entity.AuditLogEntry) error) error {
	snap := r.snapshot()
	for i := len(snap) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filter.Matches(snap[i]) {
			continue
		}
		if err := fn(snap[i].Clone()); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (r *AuditLogRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// snapshot returns the current entries. Stored entries are never modified and
// Append only writes past the snapshot length, so it is safe to read unlocked.
func (r *AuditLogRepository) snapshot() []*entity.AuditLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[:len(r.entries):len(r.entries)]
}
