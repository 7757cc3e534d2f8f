package aggregation

// AccFunc is a group accumulator function.
type AccFunc string

// Accumulator functions.
const (
	AccSum         AccFunc = "sum"
	AccAvg         AccFunc = "avg"
	AccMin         AccFunc = "min"
	AccMax         AccFunc = "max"
	AccCount       AccFunc = "count"
	AccUniqueCount AccFunc = "unique_count"
	AccFirst       AccFunc = "first"
	AccLast        AccFunc = "last"
	AccMode        AccFunc = "mode"
	AccMedian      AccFunc = "median"
	AccPercentile  AccFunc = "percentile"
)

// Accumulator reduces one field over a group partition.
type Accumulator struct {
	Func  AccFunc
	Field string
	// Percentile is p in [0, 100] for AccPercentile.
	Percentile float64
}

// Sum adds the numeric values of field.
func Sum(field string) Accumulator { return Accumulator{Func: AccSum, Field: field} }

// Avg averages the numeric values of field.
func Avg(field string) Accumulator { return Accumulator{Func: AccAvg, Field: field} }

// Min is the smallest non-null value.
func Min(field string) Accumulator { return Accumulator{Func: AccMin, Field: field} }

// Max is the largest non-null value.
func Max(field string) Accumulator { return Accumulator{Func: AccMax, Field: field} }

// Count counts documents where field is present and non-null.
func Count(field string) Accumulator { return Accumulator{Func: AccCount, Field: field} }

// UniqueCount counts distinct non-null values.
func UniqueCount(field string) Accumulator { return Accumulator{Func: AccUniqueCount, Field: field} }

// First is the value on the first document of the partition.
func First(field string) Accumulator { return Accumulator{Func: AccFirst, Field: field} }

// Last is the value on the last document of the partition.
func Last(field string) Accumulator { return Accumulator{Func: AccLast, Field: field} }

// Mode is the most frequent non-null value; ties go to the first encountered.
func Mode(field string) Accumulator { return Accumulator{Func: AccMode, Field: field} }

// Median of the numeric values.
func Median(field string) Accumulator { return Accumulator{Func: AccMedian, Field: field} }

// Percentile is the nearest-rank p-th percentile of the numeric values.
func Percentile(field string, p float64) Accumulator {
	return Accumulator{Func: AccPercentile, Field: field, Percentile: p}
}
