package aggregation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDateFormat matches the $dateToString default.
const DefaultDateFormat = "%Y-%m-%dT%H:%M:%S.%LZ"

// FormatDate renders t in UTC using $dateToString specifiers.
// Unknown specifiers are written literally.
func FormatDate(t time.Time, format string) string {
	if format == "" {
		format = DefaultDateFormat
	}
	t = t.UTC()
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			fmt.Fprintf(&sb, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&sb, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&sb, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&sb, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&sb, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&sb, "%02d", t.Second())
		case 'L':
			fmt.Fprintf(&sb, "%03d", t.Nanosecond()/int(time.Millisecond))
		case 'j':
			fmt.Fprintf(&sb, "%03d", t.YearDay())
		case 'u':
			wd := int(t.Weekday())
			if wd == 0 {
				wd = 7
			}
			sb.WriteString(strconv.Itoa(wd))
		case 'w':
			sb.WriteString(strconv.Itoa(int(t.Weekday()) + 1))
		case 'z':
			sb.WriteString(t.Format("-0700"))
		case 'Z':
			_, off := t.Zone()
			fmt.Fprintf(&sb, "%+d", off/60)
		case 'b':
			sb.WriteString(t.Month().String()[:3])
		case 'B':
			sb.WriteString(t.Month().String())
		case '%':
			sb.WriteByte('%')
		default:
			sb.WriteByte('%')
			sb.WriteByte(format[i])
		}
	}
	return sb.String()
}

// ParseDate parses s with $dateFromString specifiers. %L is accepted only
// after a '.', %u, %w and %Z are not parseable.
func ParseDate(s, format string) (time.Time, error) {
	if format == "" {
		format = DefaultDateFormat
	}
	layout, err := goLayout(format)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UTC(), nil
}

func goLayout(format string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			sb.WriteString("2006")
		case 'm':
			sb.WriteString("01")
		case 'd':
			sb.WriteString("02")
		case 'H':
			sb.WriteString("15")
		case 'M':
			sb.WriteString("04")
		case 'S':
			sb.WriteString("05")
		case 'j':
			sb.WriteString("002")
		case 'z':
			sb.WriteString("-0700")
		case 'b':
			sb.WriteString("Jan")
		case 'B':
			sb.WriteString("January")
		case '%':
			sb.WriteByte('%')
		case 'L':
			if i < 2 || format[i-2] != '.' {
				return "", fmt.Errorf("date format %q: %%L must follow '.'", format)
			}
			sb.WriteString("000")
		default:
			return "", fmt.Errorf("date format %q: unsupported specifier %%%c", format, format[i])
		}
	}
	return sb.String(), nil
}
