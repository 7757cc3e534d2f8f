package mongo

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/query"
)

// compiledQuery holds the fixed-order parts of a compiled query so the
// count and data passes of pagination share one match.
type compiledQuery struct {
	match   bson.D
	lookups []bson.D
	sort    bson.D
}

func compile(q query.Query) (compiledQuery, error) {
	match, err := CompileMatch(q)
	if err != nil {
		return compiledQuery{}, err
	}
	cq := compiledQuery{match: match}
	for _, j := range q.Joins {
		if j.Kind != query.JoinInner {
			return compiledQuery{}, fmt.Errorf("%w: %s join", domain.ErrUnsupportedOperation, j.Kind)
		}
		alias := j.Alias
		if alias == "" {
			alias = j.Collection
		}
		cq.lookups = append(cq.lookups, bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: j.Collection},
			{Key: "localField", Value: j.LocalField},
			{Key: "foreignField", Value: j.ForeignField},
			{Key: "as", Value: alias},
		}}})
	}
	if len(q.Sort) > 0 {
		cq.sort = sortDoc(q.Sort)
		if !hasKey(cq.sort, domain.IDField) {
			cq.sort = append(cq.sort, bson.E{Key: domain.IDField, Value: 1})
		}
	}
	return cq, nil
}

// filtered is match followed by lookups.
func (cq compiledQuery) filtered() mongo.Pipeline {
	p := mongo.Pipeline{{{Key: "$match", Value: cq.match}}}
	return append(p, cq.lookups...)
}

// window is filtered then sort, skip and limit. limit <= 0 adds no $limit.
func (cq compiledQuery) window(offset, limit int) mongo.Pipeline {
	p := cq.filtered()
	if len(cq.sort) > 0 {
		p = append(p, bson.D{{Key: "$sort", Value: cq.sort}})
	}
	if offset > 0 {
		p = append(p, bson.D{{Key: "$skip", Value: offset}})
	}
	if limit > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: limit}})
	}
	return p
}

// count is filtered then a $count stage.
func (cq compiledQuery) count() mongo.Pipeline {
	return append(cq.filtered(), bson.D{{Key: "$count", Value: "total"}})
}

// CompileQuery emits $match, one $lookup per join, then $sort, $skip and
// $limit in that order regardless of builder call order.
func CompileQuery(q query.Query) (mongo.Pipeline, error) {
	cq, err := compile(q)
	if err != nil {
		return nil, err
	}
	return cq.window(q.OffsetValue(), q.LimitOr(0)), nil
}

// CompileMatch compiles the AND and OR groups of q into a filter document.
func CompileMatch(q query.Query) (bson.D, error) {
	and, err := compileConditions(q.And)
	if err != nil {
		return nil, err
	}
	or, err := compileConditions(q.Or)
	if err != nil {
		return nil, err
	}

	clauses := make(bson.A, 0, len(and)+1)
	for _, c := range and {
		clauses = append(clauses, c)
	}
	switch len(or) {
	case 0:
	case 1:
		clauses = append(clauses, or[0])
	default:
		alts := make(bson.A, len(or))
		for i, c := range or {
			alts[i] = c
		}
		clauses = append(clauses, bson.D{{Key: "$or", Value: alts}})
	}

	switch len(clauses) {
	case 0:
		return bson.D{}, nil
	case 1:
		return clauses[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func compileConditions(cs []query.Condition) ([]bson.D, error) {
	out := make([]bson.D, 0, len(cs))
	for _, c := range cs {
		d, err := compileCondition(c)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

//nolint:gocyclo // one case per operator
func compileCondition(c query.Condition) (bson.D, error) {
	f := c.Field
	op := c.Op
	field := func(expr bson.D) bson.D { return bson.D{{Key: f, Value: expr}} }
	missingOr := func(expr bson.D) bson.D {
		return bson.D{{Key: "$or", Value: bson.A{
			field(bson.D{{Key: "$exists", Value: false}}),
			field(expr),
		}}}
	}

	switch op.Kind {
	case query.KindEquals:
		if op.Value == nil {
			return field(bson.D{{Key: "$eq", Value: nil}, {Key: "$exists", Value: true}}), nil
		}
		return field(bson.D{{Key: "$eq", Value: op.Value}}), nil
	case query.KindNotEqual:
		if op.Value == nil {
			return missingOr(bson.D{{Key: "$ne", Value: nil}}), nil
		}
		return field(bson.D{{Key: "$ne", Value: op.Value}}), nil
	case query.KindGreaterThan:
		return field(bson.D{{Key: "$gt", Value: op.Value}}), nil
	case query.KindLessThan:
		return field(bson.D{{Key: "$lt", Value: op.Value}}), nil
	case query.KindGreaterThanOrEqual:
		return field(bson.D{{Key: "$gte", Value: op.Value}}), nil
	case query.KindLessThanOrEqual:
		return field(bson.D{{Key: "$lte", Value: op.Value}}), nil
	case query.KindIn:
		vs := valueArray(op.Values)
		if containsNil(op.Values) {
			return field(bson.D{{Key: "$in", Value: vs}, {Key: "$exists", Value: true}}), nil
		}
		return field(bson.D{{Key: "$in", Value: vs}}), nil
	case query.KindNotIn:
		vs := valueArray(op.Values)
		if containsNil(op.Values) {
			return missingOr(bson.D{{Key: "$nin", Value: vs}}), nil
		}
		return field(bson.D{{Key: "$nin", Value: vs}}), nil
	case query.KindLike, query.KindRegex:
		pattern := "^(?:" + op.Pattern + ")"
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", domain.ErrInvalidQuery, f, err)
		}
		return field(bson.D{{Key: "$regex", Value: pattern}}), nil
	case query.KindStartsWith:
		return field(bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(op.Pattern)}}), nil
	case query.KindEndsWith:
		return field(bson.D{{Key: "$regex", Value: regexp.QuoteMeta(op.Pattern) + `\z`}}), nil
	case query.KindHasSubstring:
		return field(bson.D{{Key: "$regex", Value: regexp.QuoteMeta(op.Pattern)}}), nil
	case query.KindValueInRange:
		return field(bson.D{
			{Key: "$gte", Value: op.Low},
			{Key: "$lte", Value: op.High},
			{Key: "$not", Value: bson.D{{Key: "$type", Value: "array"}}},
		}), nil
	case query.KindRangeContains:
		return field(bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "$gte", Value: op.Low},
			{Key: "$lte", Value: op.High},
		}}}), nil
	case query.KindContains:
		return field(bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: op.Value}}}}), nil
	case query.KindExcludes:
		return field(bson.D{{Key: "$not", Value: bson.D{
			{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: op.Value}}},
		}}}), nil
	case query.KindContainsDoc:
		if op.Sub == nil {
			return nil, fmt.Errorf("%w: field %q: contains_doc without a query", domain.ErrInvalidQuery, f)
		}
		sub, err := CompileMatch(*op.Sub)
		if err != nil {
			return nil, err
		}
		return field(bson.D{{Key: "$elemMatch", Value: sub}}), nil
	}
	return nil, fmt.Errorf("%w: operator %q", domain.ErrUnsupportedOperation, op.Kind)
}

func sortDoc(keys []query.SortKey) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Direction == query.Descending {
			dir = -1
		}
		d = append(d, bson.E{Key: k.Field, Value: dir})
	}
	return d
}

func hasKey(d bson.D, key string) bool {
	for _, e := range d {
		if e.Key == key {
			return true
		}
	}
	return false
}

func valueArray(vs []any) bson.A {
	out := make(bson.A, len(vs))
	copy(out, vs)
	return out
}

func containsNil(vs []any) bool {
	for _, v := range vs {
		if v == nil {
			return true
		}
	}
	return false
}
