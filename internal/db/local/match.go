package local

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/query"
)

// predicate reports whether a document satisfies a compiled condition.
type predicate func(doc domain.Document) bool

func matchAll(domain.Document) bool { return true }

// compileQuery turns the AND and OR groups of q into one predicate.
// Joins, sort and the page window are handled by the caller.
func compileQuery(q query.Query) (predicate, error) {
	if q.IsEmpty() {
		return matchAll, nil
	}
	and, err := compileConditions(q.And)
	if err != nil {
		return nil, err
	}
	or, err := compileConditions(q.Or)
	if err != nil {
		return nil, err
	}
	return func(doc domain.Document) bool {
		for _, p := range and {
			if !p(doc) {
				return false
			}
		}
		if len(or) == 0 {
			return true
		}
		for _, p := range or {
			if p(doc) {
				return true
			}
		}
		return false
	}, nil
}

func compileConditions(cs []query.Condition) ([]predicate, error) {
	out := make([]predicate, 0, len(cs))
	for _, c := range cs {
		p, err := compileCondition(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

//nolint:gocyclo // one case per operator
func compileCondition(c query.Condition) (predicate, error) {
	field := c.Field
	op := c.Op
	get := func(doc domain.Document) (any, bool) { return domain.Lookup(doc, field) }
	not := func(p predicate) predicate {
		return func(doc domain.Document) bool { return !p(doc) }
	}

	switch op.Kind {
	case query.KindEquals:
		return present(get, anyValue(equalTo(normalize(op.Value)))), nil
	case query.KindNotEqual:
		return not(present(get, anyValue(equalTo(normalize(op.Value))))), nil
	case query.KindGreaterThan:
		return present(get, anyValue(compareTo(normalize(op.Value), func(c int) bool { return c > 0 }))), nil
	case query.KindLessThan:
		return present(get, anyValue(compareTo(normalize(op.Value), func(c int) bool { return c < 0 }))), nil
	case query.KindGreaterThanOrEqual:
		return present(get, anyValue(compareTo(normalize(op.Value), func(c int) bool { return c >= 0 }))), nil
	case query.KindLessThanOrEqual:
		return present(get, anyValue(compareTo(normalize(op.Value), func(c int) bool { return c <= 0 }))), nil
	case query.KindIn:
		return present(get, anyValue(memberOf(op.Values))), nil
	case query.KindNotIn:
		return not(present(get, anyValue(memberOf(op.Values)))), nil
	case query.KindLike, query.KindRegex:
		re, err := regexp.Compile("^(?:" + op.Pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", domain.ErrInvalidQuery, field, err)
		}
		return present(get, anyValue(stringMatch(re.MatchString))), nil
	case query.KindStartsWith:
		s := op.Pattern
		return present(get, anyValue(stringMatch(func(v string) bool { return strings.HasPrefix(v, s) }))), nil
	case query.KindEndsWith:
		s := op.Pattern
		return present(get, anyValue(stringMatch(func(v string) bool { return strings.HasSuffix(v, s) }))), nil
	case query.KindHasSubstring:
		s := op.Pattern
		return present(get, anyValue(stringMatch(func(v string) bool { return strings.Contains(v, s) }))), nil
	case query.KindValueInRange:
		in := inRange(normalize(op.Low), normalize(op.High))
		return present(get, func(v any) bool {
			if _, isArr := v.([]any); isArr {
				return false
			}
			return in(v)
		}), nil
	case query.KindRangeContains:
		return present(get, elements(inRange(normalize(op.Low), normalize(op.High)))), nil
	case query.KindContains:
		return present(get, elements(equalTo(normalize(op.Value)))), nil
	case query.KindExcludes:
		return not(present(get, elements(equalTo(normalize(op.Value))))), nil
	case query.KindContainsDoc:
		if op.Sub == nil {
			return nil, fmt.Errorf("%w: field %q: contains_doc without a query", domain.ErrInvalidQuery, field)
		}
		sub, err := compileQuery(*op.Sub)
		if err != nil {
			return nil, err
		}
		return present(get, elements(func(e any) bool {
			m, ok := e.(map[string]any)
			return ok && sub(m)
		})), nil
	}
	return nil, fmt.Errorf("%w: operator %q", domain.ErrUnsupportedOperation, op.Kind)
}

// present applies test to the field value; a missing field never matches.
func present(get func(domain.Document) (any, bool), test func(any) bool) predicate {
	return func(doc domain.Document) bool {
		v, ok := get(doc)
		return ok && test(v)
	}
}

// anyValue matches the value itself or, for arrays, any element.
func anyValue(test func(any) bool) func(any) bool {
	return func(v any) bool {
		if test(v) {
			return true
		}
		arr, ok := v.([]any)
		if !ok {
			return false
		}
		for _, e := range arr {
			if test(e) {
				return true
			}
		}
		return false
	}
}

// elements matches arrays with at least one element passing test.
func elements(test func(any) bool) func(any) bool {
	return func(v any) bool {
		arr, ok := v.([]any)
		if !ok {
			return false
		}
		for _, e := range arr {
			if test(e) {
				return true
			}
		}
		return false
	}
}

func equalTo(want any) func(any) bool {
	return func(v any) bool { return valuesEqual(v, want) }
}

func compareTo(want any, accept func(int) bool) func(any) bool {
	return func(v any) bool {
		c, ok := compareBracket(v, want)
		return ok && accept(c)
	}
}

func memberOf(set []any) func(any) bool {
	norm := make([]any, len(set))
	for i, v := range set {
		norm[i] = normalize(v)
	}
	return func(v any) bool {
		for _, w := range norm {
			if valuesEqual(v, w) {
				return true
			}
		}
		return false
	}
}

func inRange(lo, hi any) func(any) bool {
	return func(v any) bool {
		cl, ok := compareBracket(v, lo)
		if !ok || cl < 0 {
			return false
		}
		ch, ok := compareBracket(v, hi)
		return ok && ch <= 0
	}
}

func stringMatch(test func(string) bool) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && test(s)
	}
}
