package aggregation

import (
	"maps"

	"github.com/kailas-cloud/docstore/internal/domain/query"
)

// StageKind identifies a pipeline stage.
type StageKind string

// Stage kinds.
const (
	StageMatch     StageKind = "match"
	StageGroup     StageKind = "group"
	StageProject   StageKind = "project"
	StageSort      StageKind = "sort"
	StageLimit     StageKind = "limit"
	StageSkip      StageKind = "skip"
	StageUnwind    StageKind = "unwind"
	StageLookup    StageKind = "lookup"
	StageAddFields StageKind = "add_fields"
)

// ProjectSpec keeps, drops and renames fields. Exclude wins over Include,
// an empty Include keeps every field, Rename runs after filtering.
type ProjectSpec struct {
	Include []string
	Exclude []string
	Rename  map[string]string
}

// LookupSpec attaches foreign documents whose ForeignField equals LocalField.
// An empty As defaults to From.
type LookupSpec struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// Stage is a tagged pipeline step. Only the fields of its Kind are set.
type Stage struct {
	Kind StageKind

	Match query.Query

	GroupKey string
	Outputs  map[string]Accumulator

	Project ProjectSpec

	Sort []query.SortKey

	// N is the count of Limit and Skip.
	N int

	// Field is the array field of Unwind.
	Field string

	Lookup LookupSpec

	Fields map[string]Synth
}

// Pipeline is an ordered, built list of stages.
type Pipeline []Stage

func (s Stage) clone() Stage {
	out := s
	out.Match = s.Match.Clone()
	out.Outputs = maps.Clone(s.Outputs)
	out.Project = ProjectSpec{
		Include: append([]string(nil), s.Project.Include...),
		Exclude: append([]string(nil), s.Project.Exclude...),
		Rename:  maps.Clone(s.Project.Rename),
	}
	out.Sort = append([]query.SortKey(nil), s.Sort...)
	if s.Fields != nil {
		out.Fields = make(map[string]Synth, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = v.clone()
		}
	}
	return out
}
