package docstore

import (
	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
	"github.com/kailas-cloud/docstore/internal/domain/query"
	"github.com/kailas-cloud/docstore/internal/domain/result"
)

// Document is a schemaless record. Stored documents carry their id under IDField.
type Document = domain.Document

// IDField names the generated identifier in returned documents.
const IDField = domain.IDField

// Query model.
type (
	Query        = query.Query
	QueryBuilder = query.Builder
	Operator     = query.Operator
	Condition    = query.Condition
	Join         = query.Join
	JoinKind     = query.JoinKind
	SortKey      = query.SortKey
	Direction    = query.Direction
)

// Join kinds. The MongoDB engine runs only inner joins; the local engine
// runs inner and left.
const (
	JoinInner = query.JoinInner
	JoinLeft  = query.JoinLeft
	JoinRight = query.JoinRight
	JoinFull  = query.JoinFull
)

// Sort directions.
const (
	Ascending  = query.Ascending
	Descending = query.Descending
)

// Aggregation model.
type (
	Pipeline        = aggregation.Pipeline
	PipelineBuilder = aggregation.Builder
	Stage           = aggregation.Stage
	Accumulator     = aggregation.Accumulator
	Synth           = aggregation.Synth
	ProjectSpec     = aggregation.ProjectSpec
	LookupSpec      = aggregation.LookupSpec
)

// Results.
type (
	Page     = result.Page
	GroupSum = result.GroupSum
)

// DefaultDateFormat is used by date synthesis when no format is given.
const DefaultDateFormat = aggregation.DefaultDateFormat

// Errors. Match with errors.Is.
var (
	ErrNotFound             = domain.ErrNotFound
	ErrUnsupportedOperation = domain.ErrUnsupportedOperation
	ErrTypeMismatch         = domain.ErrTypeMismatch
	ErrInvalidQuery         = domain.ErrInvalidQuery
	ErrClosed               = domain.ErrClosed
)

// NewQueryBuilder returns an empty query builder.
func NewQueryBuilder() *QueryBuilder { return query.NewBuilder() }

// NewPipelineBuilder returns an empty pipeline builder.
func NewPipelineBuilder() *PipelineBuilder { return aggregation.NewBuilder() }

// Filter operators.
var (
	Equals             = query.Equals
	NotEqual           = query.NotEqual
	GreaterThan        = query.GreaterThan
	LessThan           = query.LessThan
	GreaterThanOrEqual = query.GreaterThanOrEqual
	LessThanOrEqual    = query.LessThanOrEqual
	IsIn               = query.IsIn
	NotIn              = query.NotIn
	Like               = query.Like
	RegexMatch         = query.RegexMatch
	StartsWith         = query.StartsWith
	EndsWith           = query.EndsWith
	HasSubstring       = query.HasSubstring
	ValueInRange       = query.ValueInRange
	RangeContains      = query.RangeContains
	Contains           = query.Contains
	Excludes           = query.Excludes
	ContainsDoc        = query.ContainsDoc
)

// Group accumulators.
var (
	Sum         = aggregation.Sum
	Avg         = aggregation.Avg
	Min         = aggregation.Min
	Max         = aggregation.Max
	Count       = aggregation.Count
	UniqueCount = aggregation.UniqueCount
	First       = aggregation.First
	Last        = aggregation.Last
	Mode        = aggregation.Mode
	Median      = aggregation.Median
	Percentile  = aggregation.Percentile
)

// Field synthesis functions for AddFields.
var (
	Copy         = aggregation.Copy
	Capitalize   = aggregation.Capitalize
	Multiply     = aggregation.Multiply
	Substring    = aggregation.Substring
	Concatenate  = aggregation.Concatenate
	ToUpper      = aggregation.ToUpper
	ToLower      = aggregation.ToLower
	DateToString = aggregation.DateToString
	StringToDate = aggregation.StringToDate
	DateToEpoch  = aggregation.DateToEpoch
	EpochToDate  = aggregation.EpochToDate
)
