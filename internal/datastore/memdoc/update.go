package memdoc

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/datamgr/internal/datastore/docstore"
)

// applyUpdate returns a copy of doc with the update operators $set, $inc,
// $unset and $rename applied.
func applyUpdate(doc bson.D, update bson.D) (bson.D, error) {
	out := copyDoc(doc)
	for _, op := range update {
		fields, err := operands(op.Key, op.Value)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if f.Key == docstore.IDField {
				return nil, fmt.Errorf("%s: the _id field is immutable", op.Key)
			}
			switch op.Key {
			case "$set":
				out = setField(out, f.Key, copyValue(f.Value))
			case "$unset":
				out = withoutField(out, f.Key)
			case "$inc":
				cur := toMap(out)[f.Key]
				sum, err := addNumbers(cur, f.Value)
				if err != nil {
					return nil, fmt.Errorf("$inc %s: %w", f.Key, err)
				}
				out = setField(out, f.Key, sum)
			case "$rename":
				to, ok := f.Value.(string)
				if !ok || to == "" {
					return nil, fmt.Errorf("$rename %s: target must be a field name", f.Key)
				}
				if v, exists := toMap(out)[f.Key]; exists {
					out = setField(withoutField(out, f.Key), to, v)
				}
			default:
				return nil, fmt.Errorf("unsupported update operator %s", op.Key)
			}
		}
	}
	return out, nil
}

func operands(op string, v any) (bson.D, error) {
	switch d := v.(type) {
	case bson.D:
		return d, nil
	case bson.M:
		out := make(bson.D, 0, len(d))
		for k, x := range d {
			out = append(out, bson.E{Key: k, Value: x})
		}
		slices.SortFunc(out, func(a, b bson.E) int { return cmp.Compare(a.Key, b.Key) })
		return out, nil
	default:
		return nil, fmt.Errorf("%s wants a document, got %T", op, v)
	}
}

// setField replaces field in place or appends it.
func setField(doc bson.D, field string, v any) bson.D {
	for i, e := range doc {
		if e.Key == field {
			doc[i].Value = v
			return doc
		}
	}
	return append(doc, bson.E{Key: field, Value: v})
}

// addNumbers adds delta to cur. A missing field counts as zero. Integer
// sums stay int64.
func addNumbers(cur, delta any) (any, error) {
	if cur == nil {
		cur = int64(0)
	}
	ci, cInt := asInt(cur)
	di, dInt := asInt(delta)
	if cInt && dInt {
		if (di > 0 && ci > math.MaxInt64-di) || (di < 0 && ci < math.MinInt64-di) {
			return nil, fmt.Errorf("integer overflow")
		}
		return ci + di, nil
	}
	cf, cok := asFloat(cur)
	df, dok := asFloat(delta)
	if !cok || !dok {
		return nil, fmt.Errorf("cannot add %T to %T", delta, cur)
	}
	return cf + df, nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
