package querydoc

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// evalExpr evaluates the aggregation expressions LowerFields emits: field
// paths ("$name"), literals, $regexMatch and $dateToString.
func evalExpr(doc bson.M, expr any) (any, error) {
	switch x := expr.(type) {
	case string:
		if strings.HasPrefix(x, "$$") {
			return nil, fmt.Errorf("unsupported variable %s", x)
		}
		if field, ok := strings.CutPrefix(x, "$"); ok {
			return doc[field], nil
		}
		return x, nil
	case bson.D, bson.M, map[string]any:
		d, _ := asDoc(x)
		if len(d) != 1 || !strings.HasPrefix(d[0].Key, "$") {
			return nil, fmt.Errorf("expression must be a single operator")
		}
		args, err := asDoc(d[0].Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d[0].Key, err)
		}
		switch d[0].Key {
		case OpRegexMatch:
			return regexMatch(doc, args)
		case OpDateToString:
			return dateToString(doc, args)
		default:
			return nil, fmt.Errorf("unsupported expression operator %s", d[0].Key)
		}
	default:
		return x, nil
	}
}

func arg(args bson.D, name string) any {
	for _, e := range args {
		if e.Key == name {
			return e.Value
		}
	}
	return nil
}

// regexMatch is false for a null or missing input, like MongoDB.
func regexMatch(doc bson.M, args bson.D) (any, error) {
	input, err := evalExpr(doc, arg(args, "input"))
	if err != nil {
		return nil, err
	}
	var pattern, options string
	switch re := arg(args, "regex").(type) {
	case primitive.Regex:
		pattern, options = re.Pattern, re.Options
	case string:
		pattern = re
	default:
		return nil, fmt.Errorf("%s wants a pattern, got %T", OpRegexMatch, re)
	}
	if o, ok := arg(args, "options").(string); ok {
		options = o
	}
	if input == nil {
		return false, nil
	}
	s, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("%s needs a string input, got %T", OpRegexMatch, input)
	}
	re, err := compileRegex(pattern, options)
	if err != nil {
		return nil, err
	}
	return re.MatchString(s), nil
}

// dateToString formats in UTC and yields null for a null or missing date.
func dateToString(doc bson.M, args bson.D) (any, error) {
	date, err := evalExpr(doc, arg(args, "date"))
	if err != nil || date == nil {
		return nil, err
	}
	t, ok := toTime(date)
	if !ok {
		return nil, fmt.Errorf("%s needs a date, got %T", OpDateToString, date)
	}
	format, _ := arg(args, "format").(string)
	if format == "" {
		format = "%Y-%m-%dT%H:%M:%S.%LZ"
	}
	return formatDate(t.UTC(), format)
}

func formatDate(t time.Time, format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i == len(format) {
			return "", fmt.Errorf("format %q ends in %%", format)
		}
		switch format[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'L':
			fmt.Fprintf(&b, "%03d", t.Nanosecond()/int(time.Millisecond))
		case '%':
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("unsupported format directive %%%c", format[i])
		}
	}
	return b.String(), nil
}

// truthy follows $expr: null, false and zero are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}
