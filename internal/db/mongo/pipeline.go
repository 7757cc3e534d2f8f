package mongo

import (
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
)

// tempPrefix marks intermediate group fields removed before output.
const tempPrefix = "__docstore_"

// CompilePipeline translates stages in declaration order. Some stages
// expand to several native stages so results match the local engine.
func CompilePipeline(p aggregation.Pipeline) (mongo.Pipeline, error) {
	out := mongo.Pipeline{}
	for i, st := range p {
		stages, err := compileStage(st)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, st.Kind, err)
		}
		out = append(out, stages...)
	}
	return out, nil
}

func compileStage(st aggregation.Stage) ([]bson.D, error) {
	switch st.Kind {
	case aggregation.StageMatch:
		m, err := CompileMatch(st.Match)
		if err != nil {
			return nil, err
		}
		return []bson.D{{{Key: "$match", Value: m}}}, nil
	case aggregation.StageGroup:
		return compileGroup(st.GroupKey, st.Outputs)
	case aggregation.StageProject:
		return compileProject(st.Project), nil
	case aggregation.StageSort:
		if len(st.Sort) == 0 {
			return nil, nil
		}
		return []bson.D{{{Key: "$sort", Value: sortDoc(st.Sort)}}}, nil
	case aggregation.StageLimit:
		if st.N <= 0 {
			return nil, nil
		}
		return []bson.D{{{Key: "$limit", Value: st.N}}}, nil
	case aggregation.StageSkip:
		if st.N <= 0 {
			return nil, nil
		}
		return []bson.D{{{Key: "$skip", Value: st.N}}}, nil
	case aggregation.StageUnwind:
		return []bson.D{{{Key: "$unwind", Value: "$" + st.Field}}}, nil
	case aggregation.StageLookup:
		as := st.Lookup.As
		if as == "" {
			as = st.Lookup.From
		}
		return []bson.D{{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: st.Lookup.From},
			{Key: "localField", Value: st.Lookup.LocalField},
			{Key: "foreignField", Value: st.Lookup.ForeignField},
			{Key: "as", Value: as},
		}}}}, nil
	case aggregation.StageAddFields:
		fields, err := compileAddFields(st.Fields)
		if err != nil {
			return nil, err
		}
		return []bson.D{{{Key: "$addFields", Value: fields}}}, nil
	}
	return nil, fmt.Errorf("%w: stage %q", domain.ErrUnsupportedOperation, st.Kind)
}

// compileGroup emits $group, then $addFields for statistics computed from
// pushed arrays, then copies _id into the key field and drops temporaries.
//
//nolint:gocyclo // one case per accumulator
func compileGroup(key string, outputs map[string]aggregation.Accumulator) ([]bson.D, error) {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	slices.Sort(names)

	group := bson.D{{Key: "_id", Value: "$" + key}}
	post := bson.D{}
	drop := bson.D{}
	for _, name := range names {
		acc := outputs[name]
		ref := "$" + acc.Field
		tmp := tempPrefix + name
		switch acc.Func {
		case aggregation.AccSum:
			group = append(group, bson.E{Key: name, Value: bson.D{{Key: "$sum", Value: ref}}})
		case aggregation.AccAvg:
			group = append(group, bson.E{Key: name, Value: bson.D{{Key: "$avg", Value: ref}}})
		case aggregation.AccMin:
			group = append(group, bson.E{Key: name, Value: bson.D{{Key: "$min", Value: ref}}})
		case aggregation.AccMax:
			group = append(group, bson.E{Key: name, Value: bson.D{{Key: "$max", Value: ref}}})
		case aggregation.AccFirst:
			group = append(group, bson.E{Key: name, Value: bson.D{{Key: "$first", Value: ref}}})
		case aggregation.AccLast:
			group = append(group, bson.E{Key: name, Value: bson.D{{Key: "$last", Value: ref}}})
		case aggregation.AccCount:
			group = append(group, bson.E{Key: name, Value: bson.D{{Key: "$sum", Value: cond(
				bson.D{{Key: "$in", Value: bson.A{bson.D{{Key: "$type", Value: ref}}, bson.A{"missing", "null"}}}},
				0, 1,
			)}}})
		case aggregation.AccUniqueCount:
			group = append(group, bson.E{Key: tmp, Value: bson.D{{Key: "$addToSet", Value: ref}}})
			post = append(post, bson.E{Key: name, Value: bson.D{{Key: "$size", Value: nonNullOf("$" + tmp)}}})
			drop = append(drop, bson.E{Key: tmp, Value: 0})
		case aggregation.AccMode:
			group = append(group, bson.E{Key: tmp, Value: bson.D{{Key: "$push", Value: ref}}})
			post = append(post, bson.E{Key: name, Value: modeExpr("$" + tmp)})
			drop = append(drop, bson.E{Key: tmp, Value: 0})
		case aggregation.AccMedian:
			group = append(group, bson.E{Key: tmp, Value: bson.D{{Key: "$push", Value: ref}}})
			post = append(post, bson.E{Key: name, Value: medianExpr("$" + tmp)})
			drop = append(drop, bson.E{Key: tmp, Value: 0})
		case aggregation.AccPercentile:
			group = append(group, bson.E{Key: tmp, Value: bson.D{{Key: "$push", Value: ref}}})
			post = append(post, bson.E{Key: name, Value: percentileExpr("$"+tmp, acc.Percentile)})
			drop = append(drop, bson.E{Key: tmp, Value: 0})
		default:
			return nil, fmt.Errorf("%w: accumulator %q", domain.ErrUnsupportedOperation, acc.Func)
		}
	}

	stages := []bson.D{{{Key: "$group", Value: group}}}
	if len(post) > 0 {
		stages = append(stages, bson.D{{Key: "$addFields", Value: post}})
	}
	if key != domain.IDField {
		stages = append(stages, bson.D{{Key: "$addFields", Value: bson.D{{Key: key, Value: "$_id"}}}})
		drop = append(bson.D{{Key: domain.IDField, Value: 0}}, drop...)
	}
	if len(drop) > 0 {
		stages = append(stages, bson.D{{Key: "$project", Value: drop}})
	}
	return stages, nil
}

func cond(ifExpr, then, otherwise any) bson.D {
	return bson.D{{Key: "$cond", Value: bson.A{ifExpr, then, otherwise}}}
}

func nonNullOf(input string) bson.D {
	return bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "as", Value: "v"},
		{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$v", nil}}}},
	}}}
}

func sortedNumbers(input string) bson.D {
	return bson.D{{Key: "$sortArray", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: input},
			{Key: "as", Value: "v"},
			{Key: "cond", Value: bson.D{{Key: "$isNumber", Value: "$$v"}}},
		}}}},
		{Key: "sortBy", Value: 1},
	}}}
}

func let(vars bson.D, in any) bson.D {
	return bson.D{{Key: "$let", Value: bson.D{{Key: "vars", Value: vars}, {Key: "in", Value: in}}}}
}

func at(arr string, idx any) bson.D {
	return bson.D{{Key: "$arrayElemAt", Value: bson.A{arr, bson.D{{Key: "$toInt", Value: idx}}}}}
}

// medianExpr averages the two middle values of an even count.
func medianExpr(input string) bson.D {
	half := bson.D{{Key: "$floor", Value: bson.D{{Key: "$divide", Value: bson.A{"$$n", 2}}}}}
	return let(bson.D{{Key: "s", Value: sortedNumbers(input)}}, let(
		bson.D{{Key: "n", Value: bson.D{{Key: "$size", Value: "$$s"}}}},
		bson.D{{Key: "$switch", Value: bson.D{
			{Key: "branches", Value: bson.A{
				bson.D{
					{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$$n", 0}}}},
					{Key: "then", Value: nil},
				},
				bson.D{
					{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$mod", Value: bson.A{"$$n", 2}}}, 1}}}},
					{Key: "then", Value: at("$$s", half)},
				},
			}},
			{Key: "default", Value: bson.D{{Key: "$avg", Value: bson.A{
				at("$$s", bson.D{{Key: "$subtract", Value: bson.A{half, 1}}}),
				at("$$s", half),
			}}}},
		}}},
	))
}

// percentileExpr selects the nearest rank ceil(p/100*n)-1 clamped to [0, n-1].
func percentileExpr(input string, p float64) bson.D {
	rank := bson.D{{Key: "$subtract", Value: bson.A{
		bson.D{{Key: "$ceil", Value: bson.D{{Key: "$multiply", Value: bson.A{p / 100, "$$n"}}}}},
		1,
	}}}
	clamped := bson.D{{Key: "$max", Value: bson.A{0, bson.D{{Key: "$min", Value: bson.A{
		bson.D{{Key: "$subtract", Value: bson.A{"$$n", 1}}}, rank,
	}}}}}}
	return let(bson.D{{Key: "s", Value: sortedNumbers(input)}}, let(
		bson.D{{Key: "n", Value: bson.D{{Key: "$size", Value: "$$s"}}}},
		cond(bson.D{{Key: "$eq", Value: bson.A{"$$n", 0}}}, nil, at("$$s", clamped)),
	))
}

// modeExpr reduces over the non-null values keeping the first value whose
// count is strictly greater than the best so far.
func modeExpr(input string) bson.D {
	count := bson.D{{Key: "$size", Value: bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: "$$vals"},
		{Key: "as", Value: "y"},
		{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{"$$y", "$$this"}}}},
	}}}}}
	reduce := bson.D{{Key: "$reduce", Value: bson.D{
		{Key: "input", Value: "$$vals"},
		{Key: "initialValue", Value: bson.D{{Key: "v", Value: nil}, {Key: "c", Value: 0}}},
		{Key: "in", Value: let(
			bson.D{{Key: "cnt", Value: count}},
			cond(
				bson.D{{Key: "$gt", Value: bson.A{"$$cnt", "$$value.c"}}},
				bson.D{{Key: "v", Value: "$$this"}, {Key: "c", Value: "$$cnt"}},
				"$$value",
			),
		)},
	}}}
	return let(bson.D{{Key: "vals", Value: nonNullOf(input)}},
		bson.D{{Key: "$getField", Value: bson.D{{Key: "field", Value: "v"}, {Key: "input", Value: reduce}}}},
	)
}

// compileProject mirrors the local projection: exclude wins, an empty
// include keeps everything, renames are applied after filtering.
func compileProject(spec aggregation.ProjectSpec) []bson.D {
	excluded := make(map[string]bool, len(spec.Exclude))
	for _, f := range spec.Exclude {
		excluded[f] = true
	}

	if len(spec.Include) > 0 {
		proj := bson.D{}
		seen := make(map[string]bool)
		// A rename onto an included field replaces it.
		renamedOnto := make(map[string]bool, len(spec.Rename))
		for _, f := range spec.Include {
			if nw, ok := spec.Rename[f]; ok && !excluded[f] {
				renamedOnto[nw] = true
			}
		}
		keepID := false
		for _, f := range spec.Include {
			if excluded[f] || seen[f] {
				continue
			}
			if _, renamed := spec.Rename[f]; !renamed && renamedOnto[f] {
				continue
			}
			seen[f] = true
			if nw, ok := spec.Rename[f]; ok {
				proj = append(proj, bson.E{Key: nw, Value: "$" + f})
				continue
			}
			if f == domain.IDField {
				keepID = true
			}
			proj = append(proj, bson.E{Key: f, Value: 1})
		}
		if len(proj) == 0 {
			return []bson.D{{{Key: "$replaceRoot", Value: bson.D{
				{Key: "newRoot", Value: bson.D{{Key: "$literal", Value: bson.D{}}}},
			}}}}
		}
		if !keepID {
			proj = append(bson.D{{Key: domain.IDField, Value: 0}}, proj...)
		}
		return []bson.D{{{Key: "$project", Value: proj}}}
	}

	var stages []bson.D
	if len(spec.Exclude) > 0 {
		ex := bson.D{}
		for _, f := range spec.Exclude {
			if !hasKey(ex, f) {
				ex = append(ex, bson.E{Key: f, Value: 0})
			}
		}
		stages = append(stages, bson.D{{Key: "$project", Value: ex}})
	}

	olds := make([]string, 0, len(spec.Rename))
	targets := make(map[string]bool, len(spec.Rename))
	for old, nw := range spec.Rename {
		if excluded[old] {
			continue
		}
		olds = append(olds, old)
		targets[nw] = true
	}
	if len(olds) == 0 {
		return stages
	}
	slices.Sort(olds)
	add := bson.D{}
	unset := bson.D{}
	for _, old := range olds {
		add = append(add, bson.E{Key: spec.Rename[old], Value: "$" + old})
		if !targets[old] {
			unset = append(unset, bson.E{Key: old, Value: 0})
		}
	}
	stages = append(stages, bson.D{{Key: "$addFields", Value: add}})
	if len(unset) > 0 {
		stages = append(stages, bson.D{{Key: "$project", Value: unset}})
	}
	return stages
}
