package querycache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/query"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

// mockKV is an in-memory consumer interface implementation with error hooks.
type mockKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
	incErr error
}

func newMockKV() *mockKV {
	return &mockKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockKV) IncrBy(_ context.Context, key string, val int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incErr != nil {
		return 0, m.incErr
	}
	n, _ := strconv.ParseInt(string(m.data[key]), 10, 64)
	n += val
	m.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// fakeStore counts inner calls. Methods not overridden panic on the nil embed.
type fakeStore struct {
	db.Store
	calls map[string]int

	count   int
	sum     float64
	groups  []result.GroupSum
	page    result.Page
	err     error
	updated domain.Document
	deleted int
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: map[string]int{}}
}

func (f *fakeStore) Count(context.Context, string, query.Query) (int, error) {
	f.calls["count"]++
	return f.count, f.err
}

func (f *fakeStore) Sum(context.Context, string, string, query.Query) (float64, error) {
	f.calls["sum"]++
	return f.sum, f.err
}

func (f *fakeStore) GroupSum(context.Context, string, string, string, query.Query) ([]result.GroupSum, error) {
	f.calls["group_sum"]++
	return f.groups, f.err
}

func (f *fakeStore) GetPaginated(context.Context, string, query.Query) (result.Page, error) {
	f.calls["page"]++
	return f.page, f.err
}

func (f *fakeStore) Add(context.Context, string, domain.Document) (string, error) {
	f.calls["add"]++
	return "id-1", f.err
}

func (f *fakeStore) UpdateOne(context.Context, string, query.Query, domain.Document) (domain.Document, error) {
	f.calls["update_one"]++
	return f.updated, f.err
}

func (f *fakeStore) UpdateMany(context.Context, string, query.Query, domain.Document) ([]domain.Document, error) {
	f.calls["update_many"]++
	if f.updated == nil {
		return []domain.Document{}, f.err
	}
	return []domain.Document{f.updated}, f.err
}

func (f *fakeStore) DeleteOne(context.Context, string, query.Query) (bool, error) {
	f.calls["delete_one"]++
	return f.deleted > 0, f.err
}

func (f *fakeStore) DeleteMany(context.Context, string, query.Query) (int, error) {
	f.calls["delete_many"]++
	return f.deleted, f.err
}

func (f *fakeStore) ResetDB(context.Context) error {
	f.calls["reset"]++
	return f.err
}

func newTestCache(t *testing.T) (*Store, *fakeStore, *mockKV) {
	t.Helper()
	inner := newFakeStore()
	kv := newMockKV()
	return New(inner, kv, time.Minute, nil, zap.NewNop()), inner, kv
}
