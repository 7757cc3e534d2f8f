package local

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
)

// addFields evaluates every output against the input document first, then
// assigns them. An output whose source is missing is not assigned.
func addFields(doc domain.Document, fields map[string]aggregation.Synth) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	type computed struct {
		name string
		v    any
	}
	var out []computed
	for _, name := range names {
		s := fields[name]
		if !knownSynth(s.Func) {
			return fmt.Errorf("%w: synthesis %q", domain.ErrUnsupportedOperation, s.Func)
		}
		if v, ok := synthesize(doc, s); ok {
			out = append(out, computed{name, v})
		}
	}
	for _, c := range out {
		domain.SetPath(doc, c.name, c.v)
	}
	return nil
}

func knownSynth(f aggregation.SynthFunc) bool {
	switch f {
	case aggregation.SynthCopy, aggregation.SynthCapitalize, aggregation.SynthMultiply,
		aggregation.SynthSubstring, aggregation.SynthConcatenate, aggregation.SynthToUpper,
		aggregation.SynthToLower, aggregation.SynthDateToString, aggregation.SynthStringToDate,
		aggregation.SynthDateToEpoch, aggregation.SynthEpochToDate:
		return true
	}
	return false
}

//nolint:gocyclo // one case per synthesis function
func synthesize(doc domain.Document, s aggregation.Synth) (any, bool) {
	get := func(f string) any {
		v, _ := domain.Lookup(doc, f)
		return v
	}
	str := func(f string) (string, bool) {
		v, ok := get(f).(string)
		return v, ok
	}

	switch s.Func {
	case aggregation.SynthCopy:
		v, ok := domain.Lookup(doc, s.Field)
		return domain.CloneValue(v), ok
	case aggregation.SynthCapitalize:
		v, ok := str(s.Field)
		if !ok {
			return nil, true
		}
		r, size := utf8.DecodeRuneInString(v)
		if size == 0 {
			return "", true
		}
		return strings.ToUpper(string(r)) + strings.ToLower(v[size:]), true
	case aggregation.SynthToUpper:
		if v, ok := str(s.Field); ok {
			return strings.ToUpper(v), true
		}
		return nil, true
	case aggregation.SynthToLower:
		if v, ok := str(s.Field); ok {
			return strings.ToLower(v), true
		}
		return nil, true
	case aggregation.SynthMultiply:
		product := s.Factor
		for _, f := range s.Fields {
			n, ok := toFloat(get(f))
			if !ok {
				return nil, true
			}
			product *= n
		}
		return product, true
	case aggregation.SynthSubstring:
		v, ok := str(s.Field)
		if !ok {
			return nil, true
		}
		runes := []rune(v)
		start := max(s.Start, 0)
		if start >= len(runes) {
			return "", true
		}
		end := min(start+max(s.Length, 0), len(runes))
		return string(runes[start:end]), true
	case aggregation.SynthConcatenate:
		parts := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			v, ok := str(f)
			if !ok {
				return nil, true
			}
			parts = append(parts, v)
		}
		return strings.Join(parts, s.Separator), true
	case aggregation.SynthDateToString:
		if t, ok := asTime(get(s.Field)); ok {
			return aggregation.FormatDate(t, s.Format), true
		}
		return nil, true
	case aggregation.SynthStringToDate:
		v, ok := str(s.Field)
		if !ok {
			return nil, true
		}
		t, err := aggregation.ParseDate(v, s.Format)
		if err != nil {
			return nil, true
		}
		return t, true
	case aggregation.SynthDateToEpoch:
		if t, ok := asTime(get(s.Field)); ok {
			return t.UnixMilli(), true
		}
		return nil, true
	case aggregation.SynthEpochToDate:
		if n, ok := toFloat(get(s.Field)); ok {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return nil, true
	}
	return nil, false
}

// asTime accepts time.Time and RFC 3339 strings, the form dates take
// after a collection is reloaded from disk.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
