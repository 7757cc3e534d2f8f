package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/docstore/internal/db/enginetest"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{DataDir: dir}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, dir
}

func TestFilterSuite(t *testing.T) {
	s, _ := newTestStore(t)
	enginetest.RunFilterSuite(t, s, "people")
}

func TestPaginationSuite(t *testing.T) {
	s, _ := newTestStore(t)
	enginetest.RunPaginationSuite(t, s, "numbers")
}

func TestAggregationSuite(t *testing.T) {
	s, _ := newTestStore(t)
	enginetest.RunAggregationSuite(t, s, "agg_")
}

func TestAdd_ReturnsIDAndPersists(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, "users", domain.Document{"name": "ann", domain.IDField: "ignored"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" || id == "ignored" {
		t.Fatalf("unexpected id %q", id)
	}

	doc, err := s.GetOne(ctx, "users", query.NewBuilder().Filter("name", query.Equals("ann")).Build())
	if err != nil {
		t.Fatalf("get one: %v", err)
	}
	if doc[domain.IDField] != id {
		t.Errorf("_id: got %v, want %s", doc[domain.IDField], id)
	}

	data, err := os.ReadFile(filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(data), id) {
		t.Errorf("file does not contain id: %s", data)
	}
	if strings.Contains(string(data), "ignored") {
		t.Errorf("caller _id should not be stored: %s", data)
	}
}

func TestAdd_CallerCopyIsolated(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	in := domain.Document{"tags": []any{"a"}}
	if _, err := s.Add(ctx, "c", in); err != nil {
		t.Fatalf("add: %v", err)
	}
	in["tags"].([]any)[0] = "mutated"

	doc, err := s.GetOne(ctx, "c", query.Query{})
	if err != nil {
		t.Fatalf("get one: %v", err)
	}
	doc["tags"].([]any)[0] = "also mutated"

	again, _ := s.GetOne(ctx, "c", query.Query{})
	if again["tags"].([]any)[0] != "a" {
		t.Errorf("stored document shared with callers: %v", again["tags"])
	}
}

func TestGetOne_NoMatch(t *testing.T) {
	s, _ := newTestStore(t)
	doc, err := s.GetOne(context.Background(), "empty", query.NewBuilder().Filter("x", query.Equals(1)).Build())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil document, got %v", doc)
	}
}

func TestGetMany_NoImplicitLimit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := range 40 {
		if _, err := s.Add(ctx, "many", domain.Document{"i": i}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	docs, err := s.GetMany(ctx, "many", query.Query{})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(docs) != 40 {
		t.Errorf("got %d documents, want 40", len(docs))
	}
	for i, d := range docs {
		if d["i"] != i {
			t.Fatalf("scan order broken at %d: %v", i, d["i"])
		}
	}
}

func TestQuery_ExecutionOrderIgnoresBuilderOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, n := range []int{5, 3, 9, 1, 7} {
		if _, err := s.Add(ctx, "nums", domain.Document{"n": n}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	q := query.NewBuilder().SetLimit(2).SetOffset(1).SortBy("n", query.Descending).Build()
	docs, err := s.GetMany(ctx, "nums", q)
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(docs) != 2 || docs[0]["n"] != 7 || docs[1]["n"] != 5 {
		t.Errorf("got %v, want n=7,5", docs)
	}
}

func TestQuery_SortTiesBreakByID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	var ids []string
	for range 6 {
		id, err := s.Add(ctx, "ties", domain.Document{"rank": 1})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		ids = append(ids, id)
	}
	low, err := s.Add(ctx, "ties", domain.Document{"rank": 0})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	want := slices.Clone(ids)
	slices.Sort(want)
	want = append(want, low)

	q := query.NewBuilder().SortBy("rank", query.Descending).Build()
	docs, err := s.GetMany(ctx, "ties", q)
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	got := make([]string, 0, len(docs))
	for _, d := range docs {
		got = append(got, d[domain.IDField].(string))
	}
	if !slices.Equal(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}

	unsorted, err := s.GetMany(ctx, "ties", query.Query{})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if unsorted[0][domain.IDField] != ids[0] {
		t.Errorf("unsorted read: got first %v, want insertion order", unsorted[0][domain.IDField])
	}
}

func TestUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	enginetest.Seed(t, s, "u", []domain.Document{
		{"name": "a", "status": "new"},
		{"name": "b", "status": "new"},
		{"name": "c", "status": "done"},
	})

	isNew := query.NewBuilder().Filter("status", query.Equals("new")).Build()
	doc, err := s.UpdateOne(ctx, "u", isNew, domain.Document{"status": "open", domain.IDField: "x"})
	if err != nil {
		t.Fatalf("update one: %v", err)
	}
	if doc["name"] != "a" || doc["status"] != "open" {
		t.Errorf("update one: got %v", doc)
	}
	if doc[domain.IDField] == "x" {
		t.Error("_id must not be overwritten")
	}

	docs, err := s.UpdateMany(ctx, "u", query.Query{}, domain.Document{"owner": "ops"})
	if err != nil {
		t.Fatalf("update many: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("update many: got %d docs", len(docs))
	}
	for _, d := range docs {
		if d["owner"] != "ops" || d["name"] == nil {
			t.Errorf("shallow merge lost fields: %v", d)
		}
	}

	none, err := s.UpdateOne(ctx, "u", query.NewBuilder().Filter("name", query.Equals("zzz")).Build(), domain.Document{"x": 1})
	if err != nil || none != nil {
		t.Errorf("update without match: got %v, %v", none, err)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	enginetest.Seed(t, s, "d", []domain.Document{
		{"name": "a", "k": 1}, {"name": "b", "k": 1}, {"name": "c", "k": 2},
	})
	k1 := query.NewBuilder().Filter("k", query.Equals(1)).Build()

	ok, err := s.DeleteOne(ctx, "d", k1)
	if err != nil || !ok {
		t.Fatalf("delete one: %v, %v", ok, err)
	}
	docs, _ := s.GetMany(ctx, "d", query.Query{})
	if got := enginetest.Names(docs); len(got) != 2 || got[0] != "b" {
		t.Errorf("delete one should remove the first match, left %v", got)
	}

	n, err := s.DeleteMany(ctx, "d", query.Query{})
	if err != nil || n != 2 {
		t.Errorf("delete many: got %d, %v", n, err)
	}
	ok, err = s.DeleteOne(ctx, "d", k1)
	if err != nil || ok {
		t.Errorf("delete from empty: got %v, %v", ok, err)
	}
}

func TestSum_TypeMismatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	enginetest.Seed(t, s, "s", []domain.Document{{"v": 1}, {"v": "two"}})

	_, err := s.Sum(ctx, "s", "v", query.Query{})
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Errorf("sum: expected ErrTypeMismatch, got %v", err)
	}
	_, err = s.GroupSum(ctx, "s", "g", "v", query.Query{})
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Errorf("group sum: expected ErrTypeMismatch, got %v", err)
	}
	total, err := s.Sum(ctx, "s", "v", query.NewBuilder().Filter("v", query.Equals(1)).Build())
	if err != nil || total != 1 {
		t.Errorf("sum over numeric subset: got %v, %v", total, err)
	}
}

func TestJoin_UnsupportedKinds(t *testing.T) {
	s, _ := newTestStore(t)
	for _, kind := range []query.JoinKind{query.JoinRight, query.JoinFull} {
		q := query.NewBuilder().Join("other", "a", "b", "", kind).Build()
		if _, err := s.GetMany(context.Background(), "c", q); !errors.Is(err, domain.ErrUnsupportedOperation) {
			t.Errorf("%s join: expected ErrUnsupportedOperation, got %v", kind, err)
		}
	}
	q := query.NewBuilder().Join("other", "a", "b", "", query.JoinLeft).Build()
	if _, err := s.GetMany(context.Background(), "c", q); err != nil {
		t.Errorf("left join: %v", err)
	}
}

func TestInvalidRegex(t *testing.T) {
	s, _ := newTestStore(t)
	q := query.NewBuilder().Filter("name", query.RegexMatch("(")).Build()
	if _, err := s.GetMany(context.Background(), "c", q); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestInvalidCollectionName(t *testing.T) {
	s, _ := newTestStore(t)
	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		if _, err := s.Add(context.Background(), name, domain.Document{}); !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("%q: expected ErrInvalidQuery, got %v", name, err)
		}
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()
	enginetest.Seed(t, s, "rt", []domain.Document{
		{"name": "first", "n": 1, "nested": map[string]any{"tags": []any{"x", "y"}}},
		{"name": "second", "ok": true},
		{"name": "third", "f": 2.5, "big": int64(9007199254740993)},
	})
	before, _ := s.GetMany(ctx, "rt", query.Query{})

	reopened, err := Open(Config{DataDir: dir}, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	after, err := reopened.GetMany(ctx, "rt", query.Query{})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("got %d docs after reload, want %d", len(after), len(before))
	}
	for i := range before {
		if !valuesEqual(before[i], after[i]) {
			t.Errorf("doc %d changed across reload:\n%v\n%v", i, before[i], after[i])
		}
	}

	if got, ok := after[2]["big"].(int64); !ok || got != 9007199254740993 {
		t.Errorf("big integer changed across reload: %v (%T)", after[2]["big"], after[2]["big"])
	}
	if got, ok := after[2]["f"].(float64); !ok || got != 2.5 {
		t.Errorf("float changed across reload: %v (%T)", after[2]["f"], after[2]["f"])
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestPersistence_DatesMatchAfterReopen(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	enginetest.Seed(t, s, "events", []domain.Document{
		{"name": "launch", "at": at},
		{"name": "old", "at": time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
	})

	cut := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	queries := map[string]query.Query{
		"gt":     query.NewBuilder().Filter("at", query.GreaterThan(cut)).Build(),
		"eq":     query.NewBuilder().Filter("at", query.Equals(at)).Build(),
		"range":  query.NewBuilder().Filter("at", query.ValueInRange(cut, at)).Build(),
		"in":     query.NewBuilder().Filter("at", query.IsIn(at)).Build(),
		"lte":    query.NewBuilder().Filter("at", query.LessThanOrEqual(cut)).Build(),
		"not_eq": query.NewBuilder().Filter("at", query.NotEqual(at)).Build(),
	}
	count := func(st *Store) map[string]int {
		out := map[string]int{}
		for name, q := range queries {
			n, err := st.Count(ctx, "events", q)
			if err != nil {
				t.Fatalf("count %s: %v", name, err)
			}
			out[name] = n
		}
		return out
	}
	before := count(s)

	reopened, err := Open(Config{DataDir: dir}, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	after := count(reopened)

	for name, want := range before {
		if want != 1 {
			t.Errorf("%s before reopen: got %d, want 1", name, want)
		}
		if after[name] != want {
			t.Errorf("%s after reopen: got %d, want %d", name, after[name], want)
		}
	}
}

func TestPersistence_EmptyAndMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "empty.json"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"a": {"x": 1`), 0o600); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zap.WarnLevel)
	s, err := Open(Config{DataDir: dir}, zap.New(core))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, name := range []string{"empty", "broken"} {
		n, err := s.Count(context.Background(), name, query.Query{})
		if err != nil || n != 0 {
			t.Errorf("%s: got %d, %v; want empty collection", name, n, err)
		}
	}
	if logs.FilterMessage("collection file malformed, starting empty").Len() != 1 {
		t.Errorf("expected one malformed warning, got %v", logs.All())
	}
}

func TestResetDB(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()
	enginetest.Seed(t, s, "r", []domain.Document{{"a": 1}, {"a": 2}})
	if err := s.ResetDB(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, _ := s.Count(ctx, "r", query.Query{})
	if n != 0 {
		t.Errorf("count after reset: %d", n)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "r.json"))
	if string(data) != "{}" {
		t.Errorf("file after reset: %q", data)
	}
}

func TestConcurrentAdds_NoLostUpdates(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()
	const workers, each = 8, 25

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				if _, err := s.Add(ctx, "hot", domain.Document{"w": w, "i": i}); err != nil {
					t.Errorf("add: %v", err)
					return
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				if _, err := s.Count(ctx, "hot", query.Query{}); err != nil {
					t.Errorf("count: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	n, _ := s.Count(ctx, "hot", query.Query{})
	if n != workers*each {
		t.Errorf("in memory: got %d, want %d", n, workers*each)
	}
	reopened, err := Open(Config{DataDir: dir}, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	n, _ = reopened.Count(ctx, "hot", query.Query{})
	if n != workers*each {
		t.Errorf("on disk: got %d, want %d", n, workers*each)
	}
}

func TestClosedAndCancelled(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Count(ctx, "c", query.Query{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: got %v", err)
	}

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
	_ = s.Close(context.Background())
	if err := s.Ping(context.Background()); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("ping after close: got %v", err)
	}
	if _, err := s.Add(context.Background(), "c", domain.Document{}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("add after close: got %v", err)
	}
}

func TestAggregate_SelfLookupDoesNotDeadlock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	enginetest.Seed(t, s, "emp", []domain.Document{
		{"name": "boss", "id": 1},
		{"name": "worker", "id": 2, "manager": 1},
	})
	p := aggregation.NewBuilder().
		Lookup(aggregation.LookupSpec{From: "emp", LocalField: "manager", ForeignField: "id", As: "mgr"}).
		Build()
	rows, err := s.Aggregate(ctx, "emp", p)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	worker := rows[1]["mgr"].([]any)
	if len(worker) != 1 || worker[0].(map[string]any)["name"] != "boss" {
		t.Errorf("worker manager: got %v", worker)
	}
	// boss has no manager field: missing matches documents where id is missing or null.
	if boss := rows[0]["mgr"].([]any); len(boss) != 0 {
		t.Errorf("boss manager: got %v", boss)
	}
}

func TestAggregate_UnsupportedStage(t *testing.T) {
	s, _ := newTestStore(t)
	p := aggregation.Pipeline{{Kind: "bucket"}}
	if _, err := s.Aggregate(context.Background(), "c", p); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
}
