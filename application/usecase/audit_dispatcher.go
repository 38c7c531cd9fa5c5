package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/domain/entity"
)

// OverflowPolicy decides what happens when the audit queue is full.
type OverflowPolicy string

const (
	OverflowDropNewest OverflowPolicy = "drop_newest"
	OverflowDropOldest OverflowPolicy = "drop_oldest"
)

// Reasons passed to the fallback sink.
const (
	ReasonQueueFull      = "queue_full"
	ReasonEvicted        = "evicted"
	ReasonClosed         = "dispatcher_closed"
	ReasonWriteFailed    = "write_failed"
	ReasonWritePanic     = "write_panic"
	ReasonPublishFailed  = "publish_failed"
	ReasonInvalidEntry   = "invalid_entry"
	ReasonLoggerRecovery = "logger_panic"
)

var ErrInvalidOverflowPolicy = errors.New("invalid audit overflow policy")

// ParseOverflowPolicy accepts drop_newest and drop_oldest. Empty means drop_newest.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "":
		return OverflowDropNewest, nil
	case OverflowDropNewest, OverflowDropOldest:
		return OverflowPolicy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOverflowPolicy, s)
}

type DispatcherConfig struct {
	QueueSize    int
	Workers      int
	Overflow     OverflowPolicy
	WriteTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:    1024,
		Workers:      4,
		Overflow:     OverflowDropNewest,
		WriteTimeout: 3 * time.Second,
	}
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// AuditDispatcher writes audit entries from a bounded queue on a fixed pool
// of workers. Enqueue never blocks; overflow is resolved by the configured
// policy and every lost entry goes to the fallback sink.
type AuditDispatcher struct {
	repo      outbound.AuditLogRepository
	publisher outbound.AuditPublisher
	fallback  outbound.AuditFallback
	metrics   outbound.PipelineMetrics
	cfg       DispatcherConfig

	queue chan *entity.AuditLogEntry
	wg    sync.WaitGroup

	// guards closing the queue against concurrent sends
	lifecycle sync.RWMutex
	closed    bool
	closeOnce sync.Once

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAuditDispatcher starts the worker pool. publisher may be nil.
func NewAuditDispatcher(
	repo outbound.AuditLogRepository,
	publisher outbound.AuditPublisher,
	fallback outbound.AuditFallback,
	metrics outbound.PipelineMetrics,
	cfg DispatcherConfig,
) *AuditDispatcher {
	def := DefaultDispatcherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Overflow == "" {
		cfg.Overflow = def.Overflow
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if metrics == nil {
		metrics = outbound.NoopMetrics{}
	}

	d := &AuditDispatcher{
		repo:      repo,
		publisher: publisher,
		fallback:  fallback,
		metrics:   metrics,
		cfg:       cfg,
		queue:     make(chan *entity.AuditLogEntry, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.work()
	}
	return d
}

// Enqueue hands entry to the worker pool and reports whether it was queued.
func (d *AuditDispatcher) Enqueue(ctx context.Context, entry *entity.AuditLogEntry) bool {
	d.lifecycle.RLock()
	defer d.lifecycle.RUnlock()

	if d.closed {
		d.drop(ctx, entry, ReasonClosed)
		return false
	}

	select {
	case d.queue <- entry:
		d.metrics.AuditQueueDepth(len(d.queue))
		return true
	default:
	}

	if d.cfg.Overflow == OverflowDropOldest {
		select {
		case old := <-d.queue:
			d.drop(ctx, old, ReasonEvicted)
		default:
		}
		select {
		case d.queue <- entry:
			d.metrics.AuditQueueDepth(len(d.queue))
			return true
		default:
		}
	}

	d.drop(ctx, entry, ReasonQueueFull)
	return false
}

func (d *AuditDispatcher) drop(ctx context.Context, entry *entity.AuditLogEntry, reason string) {
	d.dropped.Add(1)
	d.metrics.AuditDropped(reason)
	d.fallback.Record(ctx, entry, reason, nil)
}

func (d *AuditDispatcher) work() {
	defer d.wg.Done()
	for entry := range d.queue {
		d.write(entry)
		d.metrics.AuditQueueDepth(len(d.queue))
	}
}

func (d *AuditDispatcher) write(entry *entity.AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.metrics.AuditFailed()
			d.fallback.Record(ctx, entry, ReasonWritePanic, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := d.repo.Append(ctx, entry); err != nil {
		d.failed.Add(1)
		d.metrics.AuditFailed()
		d.fallback.Record(ctx, entry, ReasonWriteFailed, err)
		return
	}
	d.written.Add(1)
	d.metrics.AuditWritten(string(entry.Type))

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, entry); err != nil {
			d.fallback.Record(ctx, entry, ReasonPublishFailed, err)
		}
	}
}

// Close stops accepting entries and waits for queued ones to be written or
// for ctx to expire.
func (d *AuditDispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.lifecycle.Lock()
		d.closed = true
		close(d.queue)
		d.lifecycle.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit dispatcher drain: %w", ctx.Err())
	}
}

func (d *AuditDispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Queued:  len(d.queue),
		Written: d.written.Load(),
		Dropped: d.dropped.Load(),
		Failed:  d.failed.Load(),
	}
}
