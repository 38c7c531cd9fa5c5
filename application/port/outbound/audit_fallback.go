package outbound

import (
	"context"

	"github.com/fixora/condoguard/domain/entity"
)

// AuditFallback receives audit entries that were dropped or failed to persist.
// Implementations must not block and must not fail.
type AuditFallback interface {
	Record(ctx context.Context, entry *entity.AuditLogEntry, reason string, err error)
}
