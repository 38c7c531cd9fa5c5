package outbound

import (
	"context"

	"github.com/fixora/condoguard/domain/entity"
)

// AuditLogRepository is an append-only store. Append assigns ID and Timestamp;
// timestamps are strictly increasing per store. Entries are write-once: no
// update or delete method exists.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *entity.AuditLogEntry) error
	// List returns matching entries newest first, honoring Limit and Offset.
	List(ctx context.Context, filter entity.AuditLogFilter) ([]*entity.AuditLogEntry, error)
	// Stats aggregates all matching entries, ignoring Limit and Offset.
	Stats(ctx context.Context, filter entity.AuditLogFilter) (*entity.AuditLogStats, error)
	// Walk calls fn for every matching entry, ignoring Limit and Offset, and
	// stops at the first error fn returns.
	Walk(ctx context.Context, filter entity.AuditLogFilter, fn func(*entity.AuditLogEntry) error) error
}
