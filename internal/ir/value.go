package ir

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Value is a sealed interface representing a single typed cell returned by a
// data store. Only Null, Int, Float, String, Blob and Bool implement it.
type Value interface {
	irValue() // Sealed - only these types implement it

	// Kind reports the cell type tag.
	Kind() Kind

	// String renders the cell in the legacy string encoding used by
	// ResultSet.Strings.
	String() string
}

// Kind tags a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBlob
	KindBool
)

var kindNames = [...]string{"null", "int", "float", "string", "blob", "bool"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// TimeLayout is the text form used for date/time cells. It sorts
// lexicographically and matches SQLite's datetime('now').
const TimeLayout = "2006-01-02 15:04:05"

// Null is an absent value (SQL NULL, missing document field).
type Null struct{}

func (Null) irValue()       {}
func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "" }

// Int is a 64-bit signed integer cell.
type Int int64

func (Int) irValue()         {}
func (Int) Kind() Kind       { return KindInt }
func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

// Float is a double precision cell.
type Float float64

func (Float) irValue()   {}
func (Float) Kind() Kind { return KindFloat }
func (v Float) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

// String is a text cell.
type String string

func (String) irValue()         {}
func (String) Kind() Kind       { return KindString }
func (v String) String() string { return string(v) }

// Blob is a binary cell.
type Blob []byte

func (Blob) irValue()         {}
func (Blob) Kind() Kind       { return KindBlob }
func (v Blob) String() string { return string(v) }

// Bool is a boolean cell. Its string form is "1"/"0" so relational backends
// storing booleans as integers and native-boolean backends agree.
type Bool bool

func (Bool) irValue()   {}
func (Bool) Kind() Kind { return KindBool }
func (v Bool) String() string {
	if v {
		return "1"
	}
	return "0"
}

// FromAny converts a Go value coming from a driver or a caller into a Value.
// Types implementing fmt.Stringer (UUIDs, object ids) become String cells.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case []byte:
		return Blob(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val))
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint(val)
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case time.Time:
		return String(val.UTC().Format(TimeLayout)), nil
	case *string:
		if val == nil {
			return Null{}, nil
		}
		return String(*val), nil
	case fmt.Stringer:
		return String(val.String()), nil
	default:
		return nil, fmt.Errorf("unsupported cell type: %T", v)
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("unsigned value %d overflows int64", u)
	}
	return Int(int64(u)), nil
}

// MustFromAny is like FromAny but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFromAny(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ToAny converts a Value back into the plain Go value drivers accept.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Blob:
		return []byte(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// Equal reports whether two cells hold the same kind and value.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if a.Kind() == KindBlob {
		return string(a.(Blob)) == string(b.(Blob))
	}
	return a == b
}

// MarshalValue marshals a Value to JSON bytes. Blobs are base64 encoded.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Int:
		return json.Marshal(int64(val))
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("float %v cannot be encoded as JSON", f)
		}
		return json.Marshal(f)
	case String:
		return json.Marshal(string(val))
	case Blob:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	case Bool:
		return json.Marshal(bool(val))
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}
