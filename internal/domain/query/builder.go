package query

// Builder accumulates conditions, joins, sort keys and a page window.
type Builder struct {
	q Query
}

// NewBuilder creates an empty query builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Filter adds a condition to the AND group.
func (b *Builder) Filter(field string, op Operator) *Builder {
	b.q.And = append(b.q.And, Condition{Field: field, Op: op})
	return b
}

// OrFilter adds a condition to the OR group.
func (b *Builder) OrFilter(field string, op Operator) *Builder {
	b.q.Or = append(b.q.Or, Condition{Field: field, Op: op})
	return b
}

// Join adds a join. An empty alias defaults to the collection name, an empty kind to inner.
func (b *Builder) Join(collection, localField, foreignField, alias string, kind JoinKind) *Builder {
	if alias == "" {
		alias = collection
	}
	if kind == "" {
		kind = JoinInner
	}
	b.q.Joins = append(b.q.Joins, Join{
		Collection:   collection,
		LocalField:   localField,
		ForeignField: foreignField,
		Alias:        alias,
		Kind:         kind,
	})
	return b
}

// SortBy appends a sort key.
func (b *Builder) SortBy(field string, dir Direction) *Builder {
	b.q.Sort = append(b.q.Sort, SortKey{Field: field, Direction: dir})
	return b
}

// SetLimit sets the maximum number of results, overwriting any previous value.
func (b *Builder) SetLimit(n int) *Builder {
	b.q.Limit = &n
	return b
}

// SetOffset sets the number of results to skip, overwriting any previous value.
func (b *Builder) SetOffset(n int) *Builder {
	b.q.Offset = &n
	return b
}

// Build returns a snapshot of the accumulated query. Later builder calls do
// not affect snapshots already returned.
func (b *Builder) Build() Query {
	return b.q.Clone()
}
