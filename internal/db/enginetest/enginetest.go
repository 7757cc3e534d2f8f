// Package enginetest holds behaviour suites every db.Store engine must pass.
// The local engine runs them in unit tests, the MongoDB engine in
// integration tests, so both engines observe the same results.
package enginetest

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/docstore/internal/db"
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
)

// People is the fixture of the filter suite.
func People() []domain.Document {
	return []domain.Document{
		{"name": "alice", "age": 30, "city": "Paris", "tags": []any{"a", "b"}, "scores": []any{10, 20},
			"items": []any{map[string]any{"sku": "x", "qty": 2}, map[string]any{"sku": "y", "qty": 5}}, "nick": "Al"},
		{"name": "bob", "age": 25, "city": "Berlin", "tags": []any{"b"}, "scores": []any{5},
			"items": []any{map[string]any{"sku": "x", "qty": 1}}, "nick": nil},
		{"name": "carol", "age": 35, "city": "paris", "tags": []any{}, "scores": []any{30, 40}, "items": []any{}},
		{"name": "dave", "city": "Madrid", "tags": []any{"c"}, "scores": []any{25}},
		{"name": "erin", "age": "unknown", "city": "Paris", "tags": []any{"a"}, "scores": []any{},
			"nested": map[string]any{"level": 2}},
	}
}

// FilterCase is one query over People and the names it must return.
type FilterCase struct {
	Name  string
	Build func(b *query.Builder)
	Want  []string
}

// FilterCases exercises every operator, dotted paths and the AND/OR groups.
func FilterCases() []FilterCase {
	return []FilterCase{
		{"empty query", func(*query.Builder) {}, []string{"alice", "bob", "carol", "dave", "erin"}},
		{"equals", func(b *query.Builder) { b.Filter("city", query.Equals("Paris")) }, []string{"alice", "erin"}},
		{"equals array element", func(b *query.Builder) { b.Filter("tags", query.Equals("b")) }, []string{"alice", "bob"}},
		{"equals null", func(b *query.Builder) { b.Filter("nick", query.Equals(nil)) }, []string{"bob"}},
		{"not equal", func(b *query.Builder) { b.Filter("city", query.NotEqual("Paris")) }, []string{"bob", "carol", "dave"}},
		{"not equal null", func(b *query.Builder) { b.Filter("nick", query.NotEqual(nil)) }, []string{"alice", "carol", "dave", "erin"}},
		{"not equal missing field", func(b *query.Builder) { b.Filter("age", query.NotEqual(30)) }, []string{"bob", "carol", "dave", "erin"}},
		{"greater than", func(b *query.Builder) { b.Filter("age", query.GreaterThan(28)) }, []string{"alice", "carol"}},
		{"less than", func(b *query.Builder) { b.Filter("age", query.LessThan(30)) }, []string{"bob"}},
		{"greater or equal", func(b *query.Builder) { b.Filter("age", query.GreaterThanOrEqual(30)) }, []string{"alice", "carol"}},
		{"less or equal", func(b *query.Builder) { b.Filter("age", query.LessThanOrEqual(30)) }, []string{"alice", "bob"}},
		{"string comparison", func(b *query.Builder) { b.Filter("name", query.GreaterThan("carol")) }, []string{"dave", "erin"}},
		{"in", func(b *query.Builder) { b.Filter("city", query.IsIn("Berlin", "Madrid")) }, []string{"bob", "dave"}},
		{"not in", func(b *query.Builder) { b.Filter("city", query.NotIn("Berlin", "Madrid")) }, []string{"alice", "carol", "erin"}},
		{"like prefix", func(b *query.Builder) { b.Filter("name", query.Like("c.r")) }, []string{"carol"}},
		{"regex alternatives", func(b *query.Builder) { b.Filter("name", query.RegexMatch("[ab]")) }, []string{"alice", "bob"}},
		{"regex is anchored at start", func(b *query.Builder) { b.Filter("name", query.RegexMatch("ice")) }, nil},
		{"starts with", func(b *query.Builder) { b.Filter("name", query.StartsWith("da")) }, []string{"dave"}},
		{"starts with quotes metacharacters", func(b *query.Builder) { b.Filter("name", query.StartsWith("d.")) }, nil},
		{"ends with", func(b *query.Builder) { b.Filter("name", query.EndsWith("ol")) }, []string{"carol"}},
		{"has substring", func(b *query.Builder) { b.Filter("name", query.HasSubstring("ic")) }, []string{"alice"}},
		{"value in range", func(b *query.Builder) { b.Filter("age", query.ValueInRange(25, 30)) }, []string{"alice", "bob"}},
		{"value in range skips arrays", func(b *query.Builder) { b.Filter("scores", query.ValueInRange(0, 100)) }, nil},
		{"range contains", func(b *query.Builder) { b.Filter("scores", query.RangeContains(15, 25)) }, []string{"alice", "dave"}},
		{"contains", func(b *query.Builder) { b.Filter("tags", query.Contains("a")) }, []string{"alice", "erin"}},
		{"excludes", func(b *query.Builder) { b.Filter("tags", query.Excludes("a")) }, []string{"bob", "carol", "dave"}},
		{"contains doc", func(b *query.Builder) {
			b.Filter("items", query.ContainsDoc(query.NewBuilder().Filter("qty", query.GreaterThan(3)).Build()))
		}, []string{"alice"}},
		{"contains doc same element", func(b *query.Builder) {
			b.Filter("items", query.ContainsDoc(query.NewBuilder().
				Filter("sku", query.Equals("y")).
				Filter("qty", query.LessThan(2)).
				Build()))
		}, nil},
		{"dotted path", func(b *query.Builder) { b.Filter("nested.level", query.Equals(2)) }, []string{"erin"}},
		{"or group", func(b *query.Builder) {
			b.OrFilter("age", query.GreaterThan(33)).OrFilter("city", query.Equals("Madrid"))
		}, []string{"carol", "dave"}},
		{"and with or group", func(b *query.Builder) {
			b.Filter("city", query.Equals("Paris")).
				OrFilter("age", query.LessThan(31)).
				OrFilter("name", query.Equals("erin"))
		}, []string{"alice", "erin"}},
	}
}

// Seed inserts docs into collection and fails the test on error.
func Seed(t *testing.T, s db.Store, collection string, docs []domain.Document) []string {
	t.Helper()
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		id, err := s.Add(context.Background(), collection, d)
		if err != nil {
			t.Fatalf("seed %s: %v", collection, err)
		}
		ids = append(ids, id)
	}
	return ids
}

// Names extracts the sorted "name" fields of docs.
func Names(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if n, ok := d["name"].(string); ok {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// RunFilterSuite checks GetMany and Count for every FilterCase.
func RunFilterSuite(t *testing.T, s db.Store, collection string) {
	t.Helper()
	ctx := context.Background()
	Seed(t, s, collection, People())

	for _, tc := range FilterCases() {
		t.Run(tc.Name, func(t *testing.T) {
			b := s.QueryBuilder()
			tc.Build(b)
			q := b.Build()

			docs, err := s.GetMany(ctx, collection, q)
			if err != nil {
				t.Fatalf("get many: %v", err)
			}
			got := Names(docs)
			want := append([]string{}, tc.Want...)
			if !slices.Equal(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
			n, err := s.Count(ctx, collection, q)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != len(tc.Want) {
				t.Errorf("count: got %d, want %d", n, len(tc.Want))
			}
		})
	}

	t.Run("cross type sort", func(t *testing.T) {
		q := s.QueryBuilder().SortBy("age", query.Ascending).SortBy("name", query.Ascending).Build()
		docs, err := s.GetMany(ctx, collection, q)
		if err != nil {
			t.Fatalf("get many: %v", err)
		}
		got := make([]string, len(docs))
		for i, d := range docs {
			got[i], _ = d["name"].(string)
		}
		want := []string{"dave", "bob", "alice", "carol", "erin"}
		if !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

// RunPaginationSuite pages through a collection and checks the pages
// partition the result set.
func RunPaginationSuite(t *testing.T, s db.Store, collection string) {
	t.Helper()
	ctx := context.Background()
	const total, size = 10, 3
	docs := make([]domain.Document, total)
	for i := range docs {
		docs[i] = domain.Document{"n": i, "even": i%2 == 0}
	}
	Seed(t, s, collection, docs)

	seen := make(map[float64]bool)
	items := 0
	for offset, page := 0, 1; offset < total; offset, page = offset+size, page+1 {
		q := s.QueryBuilder().SortBy("n", query.Ascending).SetLimit(size).SetOffset(offset).Build()
		p, err := s.GetPaginated(ctx, collection, q)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if p.Total != total || p.Pages != 4 || p.Page != page || p.PageSize != size {
			t.Errorf("page %d: got total=%d pages=%d page=%d size=%d", page, p.Total, p.Pages, p.Page, p.PageSize)
		}
		for _, d := range p.Items {
			n := Float(d["n"])
			if seen[n] {
				t.Errorf("document %v on more than one page", n)
			}
			seen[n] = true
		}
		items += len(p.Items)
	}
	if items != total {
		t.Errorf("items across pages: got %d, want %d", items, total)
	}

	p, err := s.GetPaginated(ctx, collection, s.QueryBuilder().Filter("even", query.Equals(true)).Build())
	if err != nil {
		t.Fatalf("default page: %v", err)
	}
	if p.Total != 5 || len(p.Items) != 5 || p.PageSize != 32 || p.Pages != 1 {
		t.Errorf("default page: got %+v", p)
	}
}

// RunAggregationSuite checks every stage kind against fixed expectations.
//
//nolint:gocyclo // one block per stage
func RunAggregationSuite(t *testing.T, s db.Store, prefix string) {
	t.Helper()
	ctx := context.Background()
	sales := prefix + "sales"
	orders := prefix + "orders"
	customers := prefix + "customers"

	Seed(t, s, sales, []domain.Document{
		{"product": 101, "amount": 120, "qty": 2},
		{"product": 102, "amount": 200, "qty": 3},
		{"product": 101, "amount": 180, "qty": 3},
		{"product": 103, "amount": 150, "qty": 2},
		{"product": 102, "amount": 250, "qty": 4},
	})
	Seed(t, s, orders, []domain.Document{
		{"order": "001", "customer": "123", "items": []any{
			map[string]any{"id": "A", "qty": 2}, map[string]any{"id": "B", "qty": 3},
		}},
		{"order": "002", "customer": "999", "items": []any{}},
	})
	Seed(t, s, customers, []domain.Document{
		{"customer": "123", "name": "John Doe"},
	})

	t.Run("group sum and avg", func(t *testing.T) {
		p := aggregation.NewBuilder().
			Group("product", map[string]aggregation.Accumulator{
				"total":   aggregation.Sum("amount"),
				"avg_qty": aggregation.Avg("qty"),
			}).
			Sort(query.SortKey{Field: "product", Direction: query.Ascending}).
			Build()
		rows, err := s.Aggregate(ctx, sales, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		want := [][3]float64{{101, 300, 2.5}, {102, 450, 3.5}, {103, 150, 2.0}}
		if len(rows) != len(want) {
			t.Fatalf("groups: got %d, want %d (%v)", len(rows), len(want), rows)
		}
		for i, w := range want {
			r := rows[i]
			if Float(r["product"]) != w[0] || Float(r["total"]) != w[1] || Float(r["avg_qty"]) != w[2] {
				t.Errorf("row %d: got %v, want product=%v total=%v avg_qty=%v", i, r, w[0], w[1], w[2])
			}
			if _, ok := r[domain.IDField]; ok {
				t.Errorf("row %d: unexpected _id in group output", i)
			}
		}
	})

	t.Run("group statistics", func(t *testing.T) {
		p := aggregation.NewBuilder().
			Sort(query.SortKey{Field: "amount", Direction: query.Ascending}).
			Group("constant", map[string]aggregation.Accumulator{
				"n":      aggregation.Count("amount"),
				"uniq":   aggregation.UniqueCount("qty"),
				"lo":     aggregation.Min("amount"),
				"hi":     aggregation.Max("amount"),
				"first":  aggregation.First("amount"),
				"last":   aggregation.Last("amount"),
				"mode":   aggregation.Mode("qty"),
				"median": aggregation.Median("amount"),
				"p80":    aggregation.Percentile("amount", 80),
			}).
			Build()
		rows, err := s.Aggregate(ctx, sales, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("groups: got %d, want 1", len(rows))
		}
		r := rows[0]
		if v, ok := r["constant"]; !ok || v != nil {
			t.Errorf("missing group key should be null, got %v (present=%v)", v, ok)
		}
		checks := map[string]float64{
			"n": 5, "uniq": 3, "lo": 120, "hi": 250, "first": 120, "last": 250,
			"mode": 2, "median": 180, "p80": 200,
		}
		for k, want := range checks {
			if got := Float(r[k]); got != want {
				t.Errorf("%s: got %v, want %v", k, r[k], want)
			}
		}
	})

	t.Run("group sum helper", func(t *testing.T) {
		rows, err := s.GroupSum(ctx, sales, "product", "amount", s.QueryBuilder().Build())
		if err != nil {
			t.Fatalf("group sum: %v", err)
		}
		got := make(map[float64][2]float64)
		for _, r := range rows {
			got[Float(r.Group)] = [2]float64{r.Total, float64(r.Count)}
			if r.ValueField != "amount" {
				t.Errorf("value field: got %q", r.ValueField)
			}
		}
		want := map[float64][2]float64{101: {300, 2}, 102: {450, 2}, 103: {150, 1}}
		for k, w := range want {
			if got[k] != w {
				t.Errorf("group %v: got %v, want %v", k, got[k], w)
			}
		}
		total, err := s.Sum(ctx, sales, "amount", s.QueryBuilder().Filter("product", query.Equals(102)).Build())
		if err != nil {
			t.Fatalf("sum: %v", err)
		}
		if total != 450 {
			t.Errorf("sum: got %v, want 450", total)
		}
	})

	t.Run("unwind", func(t *testing.T) {
		p := aggregation.NewBuilder().Unwind("items").Build()
		rows, err := s.Aggregate(ctx, orders, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("rows: got %d, want 2 (empty array must drop its document)", len(rows))
		}
		for i, id := range []string{"A", "B"} {
			item, ok := rows[i]["items"].(map[string]any)
			if !ok || item["id"] != id || rows[i]["order"] != "001" {
				t.Errorf("row %d: got %v", i, rows[i])
			}
		}
	})

	t.Run("lookup", func(t *testing.T) {
		p := aggregation.NewBuilder().
			Lookup(aggregation.LookupSpec{From: customers, LocalField: "customer", ForeignField: "customer", As: "customer_details"}).
			Sort(query.SortKey{Field: "order", Direction: query.Ascending}).
			Build()
		rows, err := s.Aggregate(ctx, orders, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("rows: got %d, want 2", len(rows))
		}
		matched, _ := rows[0]["customer_details"].([]any)
		if len(matched) != 1 {
			t.Fatalf("matched: got %v", rows[0]["customer_details"])
		}
		if c, _ := matched[0].(map[string]any); c["name"] != "John Doe" {
			t.Errorf("joined customer: got %v", matched[0])
		}
		empty, ok := rows[1]["customer_details"].([]any)
		if !ok || len(empty) != 0 {
			t.Errorf("non-matching lookup should attach [], got %#v", rows[1]["customer_details"])
		}
	})

	t.Run("query join", func(t *testing.T) {
		q := s.QueryBuilder().
			Filter("order", query.Equals("001")).
			Join(customers, "customer", "customer", "buyer", query.JoinInner).
			Build()
		doc, err := s.GetOne(ctx, orders, q)
		if err != nil {
			t.Fatalf("get one: %v", err)
		}
		buyer, _ := doc["buyer"].([]any)
		if len(buyer) != 1 {
			t.Errorf("buyer: got %v", doc["buyer"])
		}
	})

	t.Run("project", func(t *testing.T) {
		coll := prefix + "project"
		Seed(t, s, coll, []domain.Document{{"a": 1, "b": 2, "c": 3}})
		p := aggregation.NewBuilder().
			Project(aggregation.ProjectSpec{
				Include: []string{"a", "b"},
				Exclude: []string{"b"},
				Rename:  map[string]string{"a": "x"},
			}).
			Build()
		rows, err := s.Aggregate(ctx, coll, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if len(rows) != 1 || len(rows[0]) != 1 || Float(rows[0]["x"]) != 1 {
			t.Errorf("got %v, want [{x:1}]", rows)
		}

		p = aggregation.NewBuilder().
			Project(aggregation.ProjectSpec{Exclude: []string{"c", domain.IDField}, Rename: map[string]string{"b": "y"}}).
			Build()
		rows, err = s.Aggregate(ctx, coll, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if len(rows) != 1 || len(rows[0]) != 2 || Float(rows[0]["a"]) != 1 || Float(rows[0]["y"]) != 2 {
			t.Errorf("got %v, want [{a:1 y:2}]", rows)
		}
	})

	t.Run("add fields", func(t *testing.T) {
		coll := prefix + "synth"
		when := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)
		Seed(t, s, coll, []domain.Document{{
			"first": "ada", "last": "LOVELACE", "price": 2.5, "qty": 4,
			"code": "ABCDEF", "when": when, "epoch": when.UnixMilli(), "day": "2024-03-05",
		}})
		p := aggregation.NewBuilder().
			AddFields(map[string]aggregation.Synth{
				"copied":    aggregation.Copy("first"),
				"cap":       aggregation.Capitalize("last"),
				"upper":     aggregation.ToUpper("first"),
				"lower":     aggregation.ToLower("last"),
				"total":     aggregation.Multiply(2, "price", "qty"),
				"bad_total": aggregation.Multiply(1, "price", "first"),
				"sub":       aggregation.Substring("code", 1, 3),
				"full":      aggregation.Concatenate(" ", "first", "last"),
				"bad_full":  aggregation.Concatenate(" ", "first", "qty"),
				"day_str":   aggregation.DateToString("when", "%Y/%m/%d"),
				"ms":        aggregation.DateToEpoch("when"),
				"from_ms":   aggregation.EpochToDate("epoch"),
				"parsed":    aggregation.StringToDate("day", "%Y-%m-%d"),
				"bad_upper": aggregation.ToUpper("qty"),
				"gone":      aggregation.Copy("missing"),
			}).
			Build()
		rows, err := s.Aggregate(ctx, coll, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("rows: got %d", len(rows))
		}
		r := rows[0]
		strs := map[string]string{
			"copied": "ada", "cap": "Lovelace", "upper": "ADA", "lower": "lovelace",
			"sub": "BCD", "full": "ada LOVELACE", "day_str": "2024/03/05",
		}
		for k, want := range strs {
			if r[k] != want {
				t.Errorf("%s: got %#v, want %q", k, r[k], want)
			}
		}
		if Float(r["total"]) != 20 {
			t.Errorf("total: got %v, want 20", r["total"])
		}
		if Float(r["ms"]) != float64(when.UnixMilli()) {
			t.Errorf("ms: got %v", r["ms"])
		}
		for _, k := range []string{"from_ms", "parsed"} {
			got, ok := r[k].(time.Time)
			wantT := when
			if k == "parsed" {
				wantT = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
			}
			if !ok || !got.Equal(wantT) {
				t.Errorf("%s: got %#v, want %v", k, r[k], wantT)
			}
		}
		for _, k := range []string{"bad_total", "bad_full", "bad_upper"} {
			if v, ok := r[k]; !ok || v != nil {
				t.Errorf("%s: got %#v (present=%v), want null", k, v, ok)
			}
		}
		if _, ok := r["gone"]; ok {
			t.Errorf("copy of a missing field should not add it")
		}
	})

	t.Run("sort skip limit", func(t *testing.T) {
		p := aggregation.NewBuilder().
			Sort(query.SortKey{Field: "amount", Direction: query.Descending}).
			Skip(1).
			Limit(2).
			Build()
		rows, err := s.Aggregate(ctx, sales, p)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if len(rows) != 2 || Float(rows[0]["amount"]) != 200 || Float(rows[1]["amount"]) != 180 {
			t.Errorf("got %v", rows)
		}
	})
}

// Float converts any numeric value to float64; non-numbers are NaN-free zero.
func Float(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}
