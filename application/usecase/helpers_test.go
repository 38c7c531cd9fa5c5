package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/fixora/condoguard/domain/entity"
)

type fallbackRecord struct {
	entry  *entity.AuditLogEntry
	reason string
	err    error
}

type recordingFallback struct {
	mu      sync.Mutex
	records []fallbackRecord
}

func (f *recordingFallback) Record(_ context.Context, entry *entity.AuditLogEntry, reason string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, fallbackRecord{entry: entry, reason: reason, err: err})
}

func (f *recordingFallback) reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.reason)
	}
	return out
}

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditRepo) List(ctx context.Context, filter entity.AuditLogFilter) ([]*entity.AuditLogEntry, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.([]*entity.AuditLogEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuditRepo) Stats(ctx context.Context, filter entity.AuditLogFilter) (*entity.AuditLogStats, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.(*entity.AuditLogStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuditRepo) Walk(ctx context.Context, filter entity.AuditLogFilter, fn func(*entity.AuditLogEntry) error) error {
	args := m.Called(ctx, filter, fn)
	return args.Error(0)
}

// blockingRepo holds every Append until release is closed.
type blockingRepo struct {
	mockAuditRepo
	release chan struct{}
	mu      sync.Mutex
	written []*entity.AuditLogEntry
}

func newBlockingRepo() *blockingRepo {
	return &blockingRepo{release: make(chan struct{})}
}

func (b *blockingRepo) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	<-b.release
	b.mu.Lock()
	b.written = append(b.written, entry)
	b.mu.Unlock()
	return nil
}

func (b *blockingRepo) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.written)
}

func mustEntry(action string) *entity.AuditLogEntry {
	e, err := entity.NewAuditLogEntry(entity.AuditLogParams{Type: entity.AuditTypeUserAction, Action: action})
	if err != nil {
		panic(err)
	}
	return e
}
