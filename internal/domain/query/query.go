package query

// Condition binds an operator to a field. Field may be a dotted path.
type Condition struct {
	Field string
	Op    Operator
}

// JoinKind is the kind of a join.
type JoinKind string

// Join kinds. Engines may support only a subset.
const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinFull  JoinKind = "full"
)

// Join attaches documents of another collection under Alias.
type Join struct {
	Collection   string
	LocalField   string
	ForeignField string
	Alias        string
	Kind         JoinKind
}

// Direction is a sort direction.
type Direction int

// Sort directions.
const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// SortKey is one sort criterion; earlier keys take priority.
type SortKey struct {
	Field     string
	Direction Direction
}

// Query is a built, immutable filter with joins, sort and a page window.
// A document matches when every And condition holds and, if Or is
// non-empty, at least one Or condition holds.
type Query struct {
	And    []Condition
	Or     []Condition
	Joins  []Join
	Sort   []SortKey
	Limit  *int
	Offset *int
}

// IsEmpty reports whether the query has no conditions.
func (q Query) IsEmpty() bool { return len(q.And) == 0 && len(q.Or) == 0 }

// LimitOr returns the limit, or def when unset or non-positive.
func (q Query) LimitOr(def int) int {
	if q.Limit == nil || *q.Limit <= 0 {
		return def
	}
	return *q.Limit
}

// OffsetValue returns the offset, 0 when unset or negative.
func (q Query) OffsetValue() int {
	if q.Offset == nil || *q.Offset < 0 {
		return 0
	}
	return *q.Offset
}

// HasLimit reports whether a positive limit is set.
func (q Query) HasLimit() bool { return q.Limit != nil && *q.Limit > 0 }

// Clone deep-copies the query.
func (q Query) Clone() Query {
	out := Query{
		And:   cloneConditions(q.And),
		Or:    cloneConditions(q.Or),
		Joins: append([]Join(nil), q.Joins...),
		Sort:  append([]SortKey(nil), q.Sort...),
	}
	if q.Limit != nil {
		n := *q.Limit
		out.Limit = &n
	}
	if q.Offset != nil {
		n := *q.Offset
		out.Offset = &n
	}
	return out
}

func cloneConditions(cs []Condition) []Condition {
	if cs == nil {
		return nil
	}
	out := make([]Condition, len(cs))
	for i, c := range cs {
		out[i] = Condition{Field: c.Field, Op: c.Op.Clone()}
	}
	return out
}
