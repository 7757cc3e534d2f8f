package mongo

import (
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kailas-cloud/docstore/internal/domain"
	"github.com/kailas-cloud/docstore/internal/domain/aggregation"
)

// compileAddFields builds one $addFields document. Inputs of the wrong type
// evaluate to null, a missing copy source leaves the output unset.
func compileAddFields(fields map[string]aggregation.Synth) (bson.D, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make(bson.D, 0, len(names))
	for _, name := range names {
		expr, err := synthExpr(fields[name])
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: name, Value: expr})
	}
	return out, nil
}

func isType(ref, typ string) bson.D {
	return bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: ref}}, typ}}}
}

func isNumber(ref string) bson.D {
	return bson.D{{Key: "$isNumber", Value: ref}}
}

func all(checks bson.A) bson.D {
	return bson.D{{Key: "$and", Value: checks}}
}

//nolint:gocyclo // one case per synthesis function
func synthExpr(s aggregation.Synth) (any, error) {
	ref := "$" + s.Field
	format := s.Format
	if format == "" {
		format = aggregation.DefaultDateFormat
	}

	switch s.Func {
	case aggregation.SynthCopy:
		return ref, nil
	case aggregation.SynthCapitalize:
		return cond(isType(ref, "string"), bson.D{{Key: "$concat", Value: bson.A{
			bson.D{{Key: "$toUpper", Value: bson.D{{Key: "$substrCP", Value: bson.A{ref, 0, 1}}}}},
			bson.D{{Key: "$toLower", Value: bson.D{{Key: "$substrCP", Value: bson.A{
				ref, 1, bson.D{{Key: "$strLenCP", Value: ref}},
			}}}}},
		}}}, nil), nil
	case aggregation.SynthToUpper:
		return cond(isType(ref, "string"), bson.D{{Key: "$toUpper", Value: ref}}, nil), nil
	case aggregation.SynthToLower:
		return cond(isType(ref, "string"), bson.D{{Key: "$toLower", Value: ref}}, nil), nil
	case aggregation.SynthMultiply:
		checks := bson.A{}
		factors := bson.A{}
		for _, f := range s.Fields {
			checks = append(checks, isNumber("$"+f))
			factors = append(factors, "$"+f)
		}
		factors = append(factors, s.Factor)
		return cond(all(checks), bson.D{{Key: "$multiply", Value: factors}}, nil), nil
	case aggregation.SynthSubstring:
		return cond(isType(ref, "string"), bson.D{{Key: "$substrCP", Value: bson.A{
			ref, max(s.Start, 0), max(s.Length, 0),
		}}}, nil), nil
	case aggregation.SynthConcatenate:
		checks := bson.A{}
		parts := bson.A{}
		for i, f := range s.Fields {
			if i > 0 && s.Separator != "" {
				parts = append(parts, bson.D{{Key: "$literal", Value: s.Separator}})
			}
			checks = append(checks, isType("$"+f, "string"))
			parts = append(parts, "$"+f)
		}
		if len(parts) == 0 {
			return bson.D{{Key: "$literal", Value: ""}}, nil
		}
		return cond(all(checks), bson.D{{Key: "$concat", Value: parts}}, nil), nil
	case aggregation.SynthDateToString:
		return cond(isType(ref, "date"), bson.D{{Key: "$dateToString", Value: bson.D{
			{Key: "date", Value: ref},
			{Key: "format", Value: format},
		}}}, nil), nil
	case aggregation.SynthStringToDate:
		return cond(isType(ref, "string"), bson.D{{Key: "$dateFromString", Value: bson.D{
			{Key: "dateString", Value: ref},
			{Key: "format", Value: format},
			{Key: "onError", Value: nil},
			{Key: "onNull", Value: nil},
		}}}, nil), nil
	case aggregation.SynthDateToEpoch:
		return cond(isType(ref, "date"), bson.D{{Key: "$toLong", Value: ref}}, nil), nil
	case aggregation.SynthEpochToDate:
		return cond(isNumber(ref), bson.D{{Key: "$toDate", Value: bson.D{{Key: "$toLong", Value: ref}}}}, nil), nil
	}
	return nil, fmt.Errorf("%w: synthesis %q", domain.ErrUnsupportedOperation, s.Func)
}
