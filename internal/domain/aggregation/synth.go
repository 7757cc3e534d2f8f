package aggregation

// SynthFunc is a field synthesis function.
type SynthFunc string

// Synthesis functions.
const (
	SynthCopy         SynthFunc = "copy"
	SynthCapitalize   SynthFunc = "capitalize"
	SynthMultiply     SynthFunc = "multiply"
	SynthSubstring    SynthFunc = "substring"
	SynthConcatenate  SynthFunc = "concatenate"
	SynthToUpper      SynthFunc = "to_upper"
	SynthToLower      SynthFunc = "to_lower"
	SynthDateToString SynthFunc = "date_to_string"
	SynthStringToDate SynthFunc = "string_to_date"
	SynthDateToEpoch  SynthFunc = "date_to_epoch"
	SynthEpochToDate  SynthFunc = "epoch_to_date"
)

// Synth computes one output field. Inputs of the wrong type yield nil.
type Synth struct {
	Func SynthFunc
	// Field is the single input of unary functions.
	Field string
	// Fields are the inputs of multiply and concatenate.
	Fields    []string
	Factor    float64
	Start     int
	Length    int
	Separator string
	// Format uses $dateToString specifiers. Empty means DefaultDateFormat.
	Format string
}

// Copy copies field.
func Copy(field string) Synth { return Synth{Func: SynthCopy, Field: field} }

// Capitalize upper-cases the first character and lower-cases the rest.
func Capitalize(field string) Synth { return Synth{Func: SynthCapitalize, Field: field} }

// Multiply is the product of fields times factor.
func Multiply(factor float64, fields ...string) Synth {
	return Synth{Func: SynthMultiply, Fields: fields, Factor: factor}
}

// Substring takes length characters from start.
func Substring(field string, start, length int) Synth {
	return Synth{Func: SynthSubstring, Field: field, Start: start, Length: length}
}

// Concatenate joins the string fields with sep.
func Concatenate(sep string, fields ...string) Synth {
	return Synth{Func: SynthConcatenate, Fields: fields, Separator: sep}
}

// ToUpper upper-cases field.
func ToUpper(field string) Synth { return Synth{Func: SynthToUpper, Field: field} }

// ToLower lower-cases field.
func ToLower(field string) Synth { return Synth{Func: SynthToLower, Field: field} }

// DateToString formats a date field.
func DateToString(field, format string) Synth {
	return Synth{Func: SynthDateToString, Field: field, Format: format}
}

// StringToDate parses a string field.
func StringToDate(field, format string) Synth {
	return Synth{Func: SynthStringToDate, Field: field, Format: format}
}

// DateToEpoch converts a date field to Unix milliseconds.
func DateToEpoch(field string) Synth { return Synth{Func: SynthDateToEpoch, Field: field} }

// EpochToDate converts Unix milliseconds to a date.
func EpochToDate(field string) Synth { return Synth{Func: SynthEpochToDate, Field: field} }

func (s Synth) clone() Synth {
	s.Fields = append([]string(nil), s.Fields...)
	return s
}
