package querydoc

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OpExists tests for the presence of a field.
const OpExists = "$exists"

// Match reports whether doc satisfies query. It understands the operators
// Lower emits ($and, $or, $in, $ne, $eq, $gt, $gte, $lt, $lte, $regex with
// $options, $bitsAnySet, $expr with $regexMatch over $dateToString) plus
// $exists, implicit equality and literal regular expressions.
//
// Missing fields follow MongoDB: they fail every comparison except $ne and
// equality with null, which they satisfy. Numbers compare by value across Go numeric types.
func Match(doc bson.M, query bson.D) (bool, error) {
	return matchElems(doc, query)
}

func matchElems(doc bson.M, elems bson.D) (bool, error) {
	for _, e := range elems {
		ok, err := matchElem(doc, e.Key, e.Value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchElem(doc bson.M, key string, value any) (bool, error) {
	switch key {
	case OpAnd, OpOr:
		subs, err := asArray(key, value)
		if err != nil {
			return false, err
		}
		for _, s := range subs {
			q, err := asDoc(s)
			if err != nil {
				return false, fmt.Errorf("%s element: %w", key, err)
			}
			ok, err := matchElems(doc, q)
			if err != nil {
				return false, err
			}
			if key == OpOr && ok {
				return true, nil
			}
			if key == OpAnd && !ok {
				return false, nil
			}
		}
		return key == OpAnd, nil
	}
	if key == OpExpr {
		v, err := evalExpr(doc, value)
		if err != nil {
			return false, fmt.Errorf("%s: %w", OpExpr, err)
		}
		return truthy(v), nil
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("unsupported top-level operator %s", key)
	}

	actual, exists := doc[key]
	if ops, ok := operatorDoc(value); ok {
		return matchOperators(actual, exists, ops)
	}
	if re, ok := value.(primitive.Regex); ok {
		return matchRegex(actual, exists, re.Pattern, re.Options)
	}
	return equalOrNull(actual, exists, value), nil
}

// equalOrNull is equality where a null operand also matches a missing field.
func equalOrNull(actual any, exists bool, value any) bool {
	if value == nil {
		return !exists || actual == nil
	}
	return exists && equal(actual, value)
}

// operatorDoc returns value as an operator document when every key of it
// starts with "$".
func operatorDoc(value any) (bson.D, bool) {
	d, err := asDoc(value)
	if err != nil || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func matchOperators(actual any, exists bool, ops bson.D) (bool, error) {
	for _, op := range ops {
		var (
			ok  bool
			err error
		)
		switch op.Key {
		case OpEq:
			ok = equalOrNull(actual, exists, op.Value)
		case OpNe:
			ok = !equalOrNull(actual, exists, op.Value)
		case OpIn:
			var vals bson.A
			if vals, err = asArray(OpIn, op.Value); err == nil {
				ok = exists && containsEqual(vals, actual)
			}
		case OpGt, OpGte, OpLt, OpLte:
			ok = exists && ordered(op.Key, actual, op.Value)
		case OpRegex:
			ok, err = regexOperator(actual, exists, op.Value, ops)
		case "$options":
			ok = true
		case OpExists:
			want, isBool := op.Value.(bool)
			if !isBool {
				err = fmt.Errorf("%s wants a bool, got %T", OpExists, op.Value)
			}
			ok = exists == want
		case OpBitsAnySet:
			ok, err = bitsAnySet(actual, exists, op.Value)
		default:
			err = fmt.Errorf("unsupported operator %s", op.Key)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func regexOperator(actual any, exists bool, value any, ops bson.D) (bool, error) {
	switch re := value.(type) {
	case primitive.Regex:
		return matchRegex(actual, exists, re.Pattern, re.Options)
	case string:
		var opts string
		for _, e := range ops {
			if e.Key == "$options" {
				opts, _ = e.Value.(string)
			}
		}
		return matchRegex(actual, exists, re, opts)
	default:
		return false, fmt.Errorf("%s wants a pattern, got %T", OpRegex, value)
	}
}

func matchRegex(actual any, exists bool, pattern, options string) (bool, error) {
	re, err := compileRegex(pattern, options)
	if err != nil {
		return false, err
	}
	s, ok := actual.(string)
	if !exists || !ok {
		return false, nil
	}
	return re.MatchString(s), nil
}

func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags string
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		default:
			return nil, fmt.Errorf("unsupported regex option %q", o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex %q: %w", pattern, err)
	}
	return re, nil
}

func bitsAnySet(actual any, exists bool, mask any) (bool, error) {
	m, ok := toInt64(mask)
	if !ok {
		return false, fmt.Errorf("%s wants an integer mask, got %T", OpBitsAnySet, mask)
	}
	v, ok := toInt64(actual)
	if !exists || !ok {
		return false, nil
	}
	return v&m != 0, nil
}

func containsEqual(vals bson.A, actual any) bool {
	for _, v := range vals {
		if equal(actual, v) {
			return true
		}
	}
	return false
}

func ordered(op string, a, b any) bool {
	c, ok := compare(a, b)
	if !ok {
		return false
	}
	switch op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	default:
		return c <= 0
	}
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compare(a, b)
	return ok && c == 0
}

// compare orders two scalars of the same family. ok is false when the
// values cannot be compared.
func compare(a, b any) (int, bool) {
	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			return cmpInt(ai, bi), true
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			if math.IsNaN(af) || math.IsNaN(bf) {
				return 0, false
			}
			return cmpFloat(af, bf), true
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), true
		}
	case primitive.Binary:
		if bv, ok := b.(primitive.Binary); ok {
			return bytes.Compare(av.Data, bv.Data), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt), true
		}
	}
	return 0, false
}

// Compare orders any two field values for sorting, like MongoDB's cross-type
// order: missing and null first, then numbers, strings, binary data,
// booleans and times. Values of the same family compare by value.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	c, _ := compare(a, b)
	return c
}

func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case []byte, primitive.Binary:
		return 3
	case bool:
		return 4
	}
	if _, ok := toTime(v); ok {
		return 5
	}
	return 6
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func asArray(op string, v any) (bson.A, error) {
	switch a := v.(type) {
	case bson.A:
		return a, nil
	case []any:
		return bson.A(a), nil
	case []bson.D:
		out := make(bson.A, len(a))
		for i, d := range a {
			out[i] = d
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s wants an array, got %T", op, v)
	}
}

func asDoc(v any) (bson.D, error) {
	switch d := v.(type) {
	case bson.D:
		return d, nil
	case bson.M:
		return mapDoc(d), nil
	case map[string]any:
		return mapDoc(d), nil
	default:
		return nil, fmt.Errorf("want a document, got %T", v)
	}
}

func mapDoc(m map[string]any) bson.D {
	d := make(bson.D, 0, len(m))
	for k, v := range m {
		d = append(d, bson.E{Key: k, Value: v})
	}
	return d
}
