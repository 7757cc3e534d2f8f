package aggregation

import "github.com/kailas-cloud/docstore/internal/domain/query"

// Builder appends stages in declaration order.
type Builder struct {
	stages []Stage
}

// NewBuilder creates an empty pipeline builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Match keeps documents satisfying q. Joins, sort and window of q are ignored.
func (b *Builder) Match(q query.Query) *Builder {
	return b.add(Stage{Kind: StageMatch, Match: q})
}

// Group partitions by key and computes outputs per partition.
func (b *Builder) Group(key string, outputs map[string]Accumulator) *Builder {
	return b.add(Stage{Kind: StageGroup, GroupKey: key, Outputs: outputs})
}

// Project filters and renames fields.
func (b *Builder) Project(spec ProjectSpec) *Builder {
	return b.add(Stage{Kind: StageProject, Project: spec})
}

// Sort orders documents by keys.
func (b *Builder) Sort(keys ...query.SortKey) *Builder {
	return b.add(Stage{Kind: StageSort, Sort: keys})
}

// Limit keeps the first n documents.
func (b *Builder) Limit(n int) *Builder {
	return b.add(Stage{Kind: StageLimit, N: n})
}

// Skip drops the first n documents.
func (b *Builder) Skip(n int) *Builder {
	return b.add(Stage{Kind: StageSkip, N: n})
}

// Unwind emits one document per element of the array field.
func (b *Builder) Unwind(field string) *Builder {
	return b.add(Stage{Kind: StageUnwind, Field: field})
}

// Lookup attaches matching foreign documents.
func (b *Builder) Lookup(spec LookupSpec) *Builder {
	if spec.As == "" {
		spec.As = spec.From
	}
	return b.add(Stage{Kind: StageLookup, Lookup: spec})
}

// AddFields computes new fields.
func (b *Builder) AddFields(fields map[string]Synth) *Builder {
	return b.add(Stage{Kind: StageAddFields, Fields: fields})
}

// Build returns a snapshot of the stages.
func (b *Builder) Build() Pipeline {
	out := make(Pipeline, len(b.stages))
	for i, s := range b.stages {
		out[i] = s.clone()
	}
	return out
}

func (b *Builder) add(s Stage) *Builder {
	b.stages = append(b.stages, s.clone())
	return b
}
