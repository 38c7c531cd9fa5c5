package outbound

import (
	"context"

	"github.com/fixora/condoguard/domain/entity"
)

// AuditPublisher mirrors persisted audit entries to a message bus.
type AuditPublisher interface {
	Publish(ctx context.Context, entry *entity.AuditLogEntry) error
	Close() error
}
