package logger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/domain/entity"
)

const DefaultFallbackSize = 256

// FallbackRecord is one audit entry that never reached the store.
type FallbackRecord struct {
	At     time.Time             `json:"at"`
	Reason string                `json:"reason"`
	Error  string                `json:"error,omitempty"`
	Entry  *entity.AuditLogEntry `json:"entry,omitempty"`
}

// FallbackLog is the local channel for audit failures. Every record is
// logged and the most recent ones are kept in a fixed-size ring.
type FallbackLog struct {
	logger Logger

	mu    sync.Mutex
	ring  []FallbackRecord
	next  int
	full  bool
	total int64
}

var _ outbound.AuditFallback = (*FallbackLog)(nil)

func NewFallbackLog(logger Logger, size int) *FallbackLog {
	if size <= 0 {
		size = DefaultFallbackSize
	}
	return &FallbackLog{logger: logger, ring: make([]FallbackRecord, size)}
}

func (f *FallbackLog) Record(ctx context.Context, entry *entity.AuditLogEntry, reason string, err error) {
	rec := FallbackRecord{At: time.Now().UTC(), Reason: reason}
	if err != nil {
		rec.Error = err.Error()
	}
	if entry != nil {
		rec.Entry = entry.Clone()
	}

	f.mu.Lock()
	f.ring[f.next] = rec
	f.next = (f.next + 1) % len(f.ring)
	if f.next == 0 {
		f.full = true
	}
	f.total++
	f.mu.Unlock()

	f.log(ctx, rec, err)
}

func (f *FallbackLog) log(ctx context.Context, rec FallbackRecord, err error) {
	defer func() {
		// Record must never panic.
		_ = recover()
	}()

	fields := map[string]interface{}{"reason": rec.Reason}
	if rec.Entry != nil {
		fields["audit_type"] = string(rec.Entry.Type)
		fields["audit_action"] = rec.Entry.Action
		fields["audit_severity"] = string(rec.Entry.Severity)
		if rec.Entry.CorrelationID != "" {
			fields["audit_correlation_id"] = rec.Entry.CorrelationID
		}
	}

	msg := fmt.Sprintf("audit entry not persisted: %s", rec.Reason)
	if err != nil {
		f.logger.Error(ctx, msg, err, fields)
		return
	}
	f.logger.Warn(ctx, msg, fields)
}

// Recent returns the retained records, oldest first.
func (f *FallbackLog) Recent() []FallbackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.full {
		return append([]FallbackRecord(nil), f.ring[:f.next]...)
	}
	out := make([]FallbackRecord, 0, len(f.ring))
	out = append(out, f.ring[f.next:]...)
	return append(out, f.ring[:f.next]...)
}

// Total counts every record since start, including ones rotated out.
func (f *FallbackLog) Total() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}
