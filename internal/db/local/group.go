package local

import (
	"fmt"
	"math"
	"slices"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

type partition struct {
	key  any
	docs []domain.Document
}

// partitionBy groups docs by the value of field in first-encountered order.
// Missing and null share the nil group.
func partitionBy(docs []domain.Document, field string) []*partition {
	var order []*partition
	index := make(map[string]*partition)
	for _, d := range docs {
		v, _ := domain.Lookup(d, field)
		k := canonicalKey(v)
		p, ok := index[k]
		if !ok {
			p = &partition{key: v}
			index[k] = p
			order = append(order, p)
		}
		p.docs = append(p.docs, d)
	}
	return order
}

func group(docs []domain.Document, key string, outputs map[string]aggregation.Accumulator) ([]domain.Document, error) {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := partitionBy(docs, key)
	out := make([]domain.Document, 0, len(parts))
	for _, p := range parts {
		row := domain.Document{}
		for _, name := range names {
			v, err := accumulate(outputs[name], p.docs)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", name, err)
			}
			row[name] = v
		}
		domain.SetPath(row, key, domain.CloneValue(p.key))
		out = append(out, row)
	}
	return out, nil
}

//nolint:gocyclo // one case per accumulator
func accumulate(acc aggregation.Accumulator, docs []domain.Document) (any, error) {
	switch acc.Func {
	case aggregation.AccSum:
		var total float64
		for _, f := range numbers(docs, acc.Field) {
			total += f
		}
		return total, nil
	case aggregation.AccAvg:
		nums := numbers(docs, acc.Field)
		if len(nums) == 0 {
			return nil, nil
		}
		var total float64
		for _, f := range nums {
			total += f
		}
		return total / float64(len(nums)), nil
	case aggregation.AccMin, aggregation.AccMax:
		var best any
		for _, v := range nonNull(docs, acc.Field) {
			c := compareValues(v, best)
			if best == nil || (acc.Func == aggregation.AccMin && c < 0) || (acc.Func == aggregation.AccMax && c > 0) {
				best = v
			}
		}
		return domain.CloneValue(best), nil
	case aggregation.AccCount:
		return len(nonNull(docs, acc.Field)), nil
	case aggregation.AccUniqueCount:
		seen := make(map[string]bool)
		for _, v := range nonNull(docs, acc.Field) {
			seen[canonicalKey(v)] = true
		}
		return len(seen), nil
	case aggregation.AccFirst, aggregation.AccLast:
		if len(docs) == 0 {
			return nil, nil
		}
		d := docs[0]
		if acc.Func == aggregation.AccLast {
			d = docs[len(docs)-1]
		}
		v, _ := domain.Lookup(d, acc.Field)
		return domain.CloneValue(v), nil
	case aggregation.AccMode:
		return mode(nonNull(docs, acc.Field)), nil
	case aggregation.AccMedian:
		return nanToNil(result.Median(numbers(docs, acc.Field))), nil
	case aggregation.AccPercentile:
		return nanToNil(result.Percentile(numbers(docs, acc.Field), acc.Percentile)), nil
	}
	return nil, fmt.Errorf("%w: accumulator %q", domain.ErrUnsupportedOperation, acc.Func)
}

// mode picks the most frequent value; a later value must strictly beat
// the current count to win, so ties go to the first encountered.
func mode(values []any) any {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[canonicalKey(v)]++
	}
	var best any
	bestCount := 0
	for _, v := range values {
		if c := counts[canonicalKey(v)]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return domain.CloneValue(best)
}

func numbers(docs []domain.Document, field string) []float64 {
	var out []float64
	for _, d := range docs {
		v, _ := domain.Lookup(d, field)
		if f, ok := toFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

func nonNull(docs []domain.Document, field string) []any {
	var out []any
	for _, d := range docs {
		if v, ok := domain.Lookup(d, field); ok && v != nil {
			out = append(out, v)
		}
	}
	return out
}

func nanToNil(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}
