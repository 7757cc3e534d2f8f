package query

import (
	"reflect"
	"testing"
)

func TestBuilder_Accumulates(t *testing.T) {
	q := NewBuilder().
		Filter("age", GreaterThan(30)).
		Filter("city", Equals("Paris")).
		OrFilter("tier", Equals("gold")).
		SortBy("age", Descending).
		SortBy("name", Ascending).
		Build()

	if len(q.And) != 2 {
		t.Fatalf("and conditions: got %d, want 2", len(q.And))
	}
	if q.And[0].Field != "age" || q.And[0].Op.Kind != KindGreaterThan {
		t.Errorf("first condition: got %+v", q.And[0])
	}
	if len(q.Or) != 1 || q.Or[0].Op.Value != "gold" {
		t.Errorf("or conditions: got %+v", q.Or)
	}
	want := []SortKey{{"age", Descending}, {"name", Ascending}}
	if !reflect.DeepEqual(q.Sort, want) {
		t.Errorf("sort: got %+v, want %+v", q.Sort, want)
	}
}

func TestBuilder_LimitOffsetOverwrite(t *testing.T) {
	q := NewBuilder().SetLimit(5).SetLimit(10).SetOffset(3).SetOffset(20).Build()
	if q.LimitOr(32) != 10 {
		t.Errorf("limit: got %d, want 10", q.LimitOr(32))
	}
	if q.OffsetValue() != 20 {
		t.Errorf("offset: got %d, want 20", q.OffsetValue())
	}
}

func TestQuery_Defaults(t *testing.T) {
	q := NewBuilder().Build()
	if q.HasLimit() {
		t.Error("empty query should have no limit")
	}
	if q.LimitOr(32) != 32 {
		t.Errorf("default limit: got %d", q.LimitOr(32))
	}
	if got := NewBuilder().SetLimit(0).Build().LimitOr(32); got != 32 {
		t.Errorf("zero limit should fall back to default, got %d", got)
	}
	if got := NewBuilder().SetOffset(-4).Build().OffsetValue(); got != 0 {
		t.Errorf("negative offset should be 0, got %d", got)
	}
	if !q.IsEmpty() {
		t.Error("expected empty query")
	}
}

func TestBuilder_JoinDefaults(t *testing.T) {
	q := NewBuilder().Join("customers", "customer", "customer", "", "").Build()
	if len(q.Joins) != 1 {
		t.Fatalf("joins: got %d, want 1", len(q.Joins))
	}
	j := q.Joins[0]
	if j.Alias != "customers" {
		t.Errorf("alias: got %q, want customers", j.Alias)
	}
	if j.Kind != JoinInner {
		t.Errorf("kind: got %q, want inner", j.Kind)
	}
}

func TestBuilder_BuildIdempotent(t *testing.T) {
	b := NewBuilder().
		Filter("tags", Contains("a")).
		Filter("status", IsIn("new", "open")).
		Filter("items", ContainsDoc(NewBuilder().Filter("qty", GreaterThan(1)).Build())).
		Join("users", "owner", "id", "owner_doc", JoinInner).
		SetLimit(7)

	first := b.Build()
	second := b.Build()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("build not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestBuilder_SnapshotIsolation(t *testing.T) {
	b := NewBuilder().Filter("status", IsIn("new", "open")).SetLimit(1)
	snap := b.Build()

	b.Filter("age", GreaterThan(1)).SetLimit(50)
	snap.And[0].Op.Values[0] = "mutated"

	again := b.Build()
	if len(snap.And) != 1 {
		t.Errorf("snapshot grew: %d conditions", len(snap.And))
	}
	if *snap.Limit != 1 {
		t.Errorf("snapshot limit changed: %d", *snap.Limit)
	}
	if again.And[0].Op.Values[0] != "new" {
		t.Errorf("builder state shared with snapshot: %v", again.And[0].Op.Values)
	}
}

func TestOperatorConstructors(t *testing.T) {
	tests := []struct {
		name string
		op   Operator
		kind Kind
	}{
		{"equals", Equals(1), KindEquals},
		{"not equal", NotEqual(1), KindNotEqual},
		{"gt", GreaterThan(1), KindGreaterThan},
		{"lt", LessThan(1), KindLessThan},
		{"gte", GreaterThanOrEqual(1), KindGreaterThanOrEqual},
		{"lte", LessThanOrEqual(1), KindLessThanOrEqual},
		{"in", IsIn(1, 2), KindIn},
		{"nin", NotIn(1, 2), KindNotIn},
		{"like", Like("ab"), KindLike},
		{"regex", RegexMatch("a.c"), KindRegex},
		{"starts", StartsWith("a"), KindStartsWith},
		{"ends", EndsWith("z"), KindEndsWith},
		{"substring", HasSubstring("mid"), KindHasSubstring},
		{"range", ValueInRange(1, 5), KindValueInRange},
		{"range contains", RangeContains(1, 5), KindRangeContains},
		{"contains", Contains("x"), KindContains},
		{"excludes", Excludes("x"), KindExcludes},
		{"contains doc", ContainsDoc(Query{}), KindContainsDoc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.op.Kind != tt.kind {
				t.Errorf("got %q, want %q", tt.op.Kind, tt.kind)
			}
		})
	}
}
