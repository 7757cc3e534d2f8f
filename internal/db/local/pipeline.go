package local

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
)

// foreignSource returns a snapshot of a collection for lookups.
type foreignSource func(collection string) ([]domain.Document, error)

// runPipeline executes stages in declaration order over docs.
func runPipeline(docs []domain.Document, p aggregation.Pipeline, foreign foreignSource) ([]domain.Document, error) {
	for i, st := range p {
		var err error
		switch st.Kind {
		case aggregation.StageMatch:
			var pred predicate
			pred, err = compileQuery(st.Match)
			if err == nil {
				docs = filter(docs, pred)
			}
		case aggregation.StageGroup:
			docs, err = group(docs, st.GroupKey, st.Outputs)
		case aggregation.StageProject:
			for j, d := range docs {
				docs[j] = project(d, st.Project)
			}
		case aggregation.StageSort:
			sortDocs(docs, st.Sort)
		case aggregation.StageLimit:
			if st.N > 0 && st.N < len(docs) {
				docs = docs[:st.N]
			}
		case aggregation.StageSkip:
			docs = skip(docs, st.N)
		case aggregation.StageUnwind:
			docs = unwind(docs, st.Field)
		case aggregation.StageLookup:
			var rows []domain.Document
			rows, err = foreign(st.Lookup.From)
			if err == nil {
				lookup(docs, rows, st.Lookup)
			}
		case aggregation.StageAddFields:
			for _, d := range docs {
				if err = addFields(d, st.Fields); err != nil {
					break
				}
			}
		default:
			err = fmt.Errorf("%w: stage %q", domain.ErrUnsupportedOperation, st.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, st.Kind, err)
		}
	}
	return docs, nil
}

func filter(docs []domain.Document, pred predicate) []domain.Document {
	out := docs[:0]
	for _, d := range docs {
		if pred(d) {
			out = append(out, d)
		}
	}
	return out
}

func skip(docs []domain.Document, n int) []domain.Document {
	if n <= 0 {
		return docs
	}
	if n >= len(docs) {
		return docs[:0]
	}
	return docs[n:]
}

// window applies offset then limit. limit <= 0 keeps everything after offset.
func window(docs []domain.Document, offset, limit int) []domain.Document {
	docs = skip(docs, offset)
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// sortDocs is a stable multi-key sort; missing fields sort as null.
func sortDocs(docs []domain.Document, keys []query.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			a, _ := domain.Lookup(docs[i], k.Field)
			b, _ := domain.Lookup(docs[j], k.Field)
			c := compareValues(a, b)
			if k.Direction == query.Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// withIDTiebreak orders ties by _id ascending unless the keys already sort on it.
func withIDTiebreak(keys []query.SortKey) []query.SortKey {
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		if k.Field == domain.IDField {
			return keys
		}
	}
	out := make([]query.SortKey, len(keys), len(keys)+1)
	copy(out, keys)
	return append(out, query.SortKey{Field: domain.IDField, Direction: query.Ascending})
}

// project keeps, drops and renames fields. Renames are applied together
// from the filtered document so swaps work.
func project(doc domain.Document, spec aggregation.ProjectSpec) domain.Document {
	excluded := make(map[string]bool, len(spec.Exclude))
	for _, f := range spec.Exclude {
		excluded[f] = true
	}

	var out domain.Document
	if len(spec.Include) == 0 {
		out = doc
		for _, f := range spec.Exclude {
			deletePath(out, f)
		}
	} else {
		out = domain.Document{}
		for _, f := range spec.Include {
			if excluded[f] {
				continue
			}
			if v, ok := domain.Lookup(doc, f); ok {
				domain.SetPath(out, f, v)
			}
		}
	}

	if len(spec.Rename) == 0 {
		return out
	}
	olds := make([]string, 0, len(spec.Rename))
	targets := make(map[string]bool, len(spec.Rename))
	for old, nw := range spec.Rename {
		olds = append(olds, old)
		targets[nw] = true
	}
	slices.Sort(olds)
	moved := make(map[string]any, len(olds))
	for _, old := range olds {
		if v, ok := domain.Lookup(out, old); ok {
			moved[spec.Rename[old]] = v
		}
	}
	for _, old := range olds {
		if !targets[old] {
			deletePath(out, old)
		}
	}
	for nw, v := range moved {
		domain.SetPath(out, nw, v)
	}
	return out
}

func deletePath(doc domain.Document, path string) {
	cur := doc
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// unwind emits one document per array element. Missing, null and empty
// arrays produce nothing; any other scalar passes through unchanged.
func unwind(docs []domain.Document, field string) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		v, ok := domain.Lookup(d, field)
		if !ok || v == nil {
			continue
		}
		arr, isArr := v.([]any)
		if !isArr {
			out = append(out, d)
			continue
		}
		for _, e := range arr {
			cp := domain.Clone(d)
			domain.SetPath(cp, field, domain.CloneValue(e))
			out = append(out, cp)
		}
	}
	return out
}

// lookup attaches the foreign rows whose foreign field matches the local
// value. Arrays on either side match element-wise; missing matches null.
func lookup(docs, foreign []domain.Document, spec aggregation.LookupSpec) {
	for _, d := range docs {
		local, _ := domain.Lookup(d, spec.LocalField)
		matched := make([]any, 0)
		for _, f := range foreign {
			fv, _ := domain.Lookup(f, spec.ForeignField)
			if joinMatch(local, fv) {
				matched = append(matched, domain.Clone(f))
			}
		}
		domain.SetPath(d, spec.As, matched)
	}
}

func joinMatch(a, b any) bool {
	for _, x := range joinValues(a) {
		for _, y := range joinValues(b) {
			if valuesEqual(x, y) {
				return true
			}
		}
	}
	return false
}

func joinValues(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}

func lookupSpec(j query.Join) aggregation.LookupSpec {
	return aggregation.LookupSpec{
		From:         j.Collection,
		LocalField:   j.LocalField,
		ForeignField: j.ForeignField,
		As:           j.Alias,
	}
}
