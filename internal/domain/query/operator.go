package query

import "github.com/kailas-cloud/docstore/internal/domain"

// Kind identifies an operator.
type Kind string

// Operator kinds.
const (
	KindEquals             Kind = "equals"
	KindNotEqual           Kind = "not_equal"
	KindGreaterThan        Kind = "greater_than"
	KindLessThan           Kind = "less_than"
	KindGreaterThanOrEqual Kind = "greater_than_or_equal"
	KindLessThanOrEqual    Kind = "less_than_or_equal"
	KindIn                 Kind = "is_in"
	KindNotIn              Kind = "not_in"
	KindLike               Kind = "like"
	KindRegex              Kind = "regex_match"
	KindStartsWith         Kind = "starts_with"
	KindEndsWith           Kind = "ends_with"
	KindHasSubstring       Kind = "has_substring"
	KindValueInRange       Kind = "value_in_range"
	KindRangeContains      Kind = "range_contains"
	KindContains           Kind = "contains"
	KindExcludes           Kind = "excludes"
	KindContainsDoc        Kind = "contains_doc"
)

// Operator is a tagged predicate node. Which operand fields are set depends on Kind.
type Operator struct {
	Kind Kind
	// Value is the operand of equality, comparison and membership-of-one operators.
	Value any
	// Values is the set for KindIn and KindNotIn.
	Values []any
	// Pattern is the regex or literal text of pattern and substring operators.
	Pattern string
	// Low and High bound the range operators, both inclusive.
	Low, High any
	// Sub is the nested query of KindContainsDoc.
	Sub *Query
}

// Equals matches a present field equal to v. An array field matches if any element is equal.
func Equals(v any) Operator { return Operator{Kind: KindEquals, Value: v} }

// NotEqual negates Equals. A missing field matches.
func NotEqual(v any) Operator { return Operator{Kind: KindNotEqual, Value: v} }

// GreaterThan matches values of the same type bracket greater than v.
func GreaterThan(v any) Operator { return Operator{Kind: KindGreaterThan, Value: v} }

// LessThan matches values of the same type bracket less than v.
func LessThan(v any) Operator { return Operator{Kind: KindLessThan, Value: v} }

// GreaterThanOrEqual matches values of the same type bracket >= v.
func GreaterThanOrEqual(v any) Operator { return Operator{Kind: KindGreaterThanOrEqual, Value: v} }

// LessThanOrEqual matches values of the same type bracket <= v.
func LessThanOrEqual(v any) Operator { return Operator{Kind: KindLessThanOrEqual, Value: v} }

// IsIn matches a field equal to any of vs.
func IsIn(vs ...any) Operator { return Operator{Kind: KindIn, Values: vs} }

// NotIn negates IsIn. A missing field matches.
func NotIn(vs ...any) Operator { return Operator{Kind: KindNotIn, Values: vs} }

// Like matches a string field whose prefix matches the pattern.
func Like(pattern string) Operator { return Operator{Kind: KindLike, Pattern: pattern} }

// RegexMatch is Like under its regex name. Matching is anchored at the start only.
func RegexMatch(pattern string) Operator { return Operator{Kind: KindRegex, Pattern: pattern} }

// StartsWith matches a string field with the literal prefix s.
func StartsWith(s string) Operator { return Operator{Kind: KindStartsWith, Pattern: s} }

// EndsWith matches a string field with the literal suffix s.
func EndsWith(s string) Operator { return Operator{Kind: KindEndsWith, Pattern: s} }

// HasSubstring matches a string field containing s.
func HasSubstring(s string) Operator { return Operator{Kind: KindHasSubstring, Pattern: s} }

// ValueInRange matches a scalar field in [lo, hi].
func ValueInRange(lo, hi any) Operator { return Operator{Kind: KindValueInRange, Low: lo, High: hi} }

// RangeContains matches an array field with at least one element in [lo, hi].
func RangeContains(lo, hi any) Operator {
	return Operator{Kind: KindRangeContains, Low: lo, High: hi}
}

// Contains matches an array field holding v.
func Contains(v any) Operator { return Operator{Kind: KindContains, Value: v} }

// Excludes negates Contains.
func Excludes(v any) Operator { return Operator{Kind: KindExcludes, Value: v} }

// ContainsDoc matches an array of sub-documents where one satisfies every
// condition of q on its own.
func ContainsDoc(q Query) Operator {
	sub := q.Clone()
	return Operator{Kind: KindContainsDoc, Sub: &sub}
}

// Clone deep-copies the operands.
func (o Operator) Clone() Operator {
	out := o
	out.Value = domain.CloneValue(o.Value)
	out.Low = domain.CloneValue(o.Low)
	out.High = domain.CloneValue(o.High)
	if o.Values != nil {
		out.Values = make([]any, len(o.Values))
		for i, v := range o.Values {
			out.Values[i] = domain.CloneValue(v)
		}
	}
	if o.Sub != nil {
		sub := o.Sub.Clone()
		out.Sub = &sub
	}
	return out
}
