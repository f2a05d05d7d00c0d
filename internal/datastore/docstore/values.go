package docstore

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
)

// timeLayouts are accepted for date and date/time columns.
var timeLayouts = []string{ir.TimeLayout, time.RFC3339Nano, "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}

func isTimeKind(k datastore.ColumnKind) bool {
	return k == datastore.DateTime || k == datastore.Date
}

// encodeValue converts a caller value to its stored form. Values of date
// columns, and time.Time values anywhere, are stored as BSON dates.
func encodeValue(c *datastore.ColumnDefinition, v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return primitive.NewDateTimeFromTime(t), nil
	}
	val, err := ir.FromAny(v)
	if err != nil {
		return nil, err
	}
	if s, ok := val.(ir.String); ok && c != nil && isTimeKind(c.Type.Kind) {
		t, err := parseTime(string(s))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return primitive.NewDateTimeFromTime(t), nil
	}
	return ir.ToAny(val), nil
}

// decodeValue converts a stored field to a typed cell.
func decodeValue(v any) ir.Value {
	switch val := v.(type) {
	case primitive.DateTime:
		return ir.String(val.Time().UTC().Format(ir.TimeLayout))
	case primitive.Binary:
		return ir.Blob(val.Data)
	case primitive.ObjectID:
		return ir.String(val.Hex())
	case primitive.Decimal128:
		return ir.String(val.String())
	case bson.D, bson.M, bson.A:
		b, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: val}}, false, false)
		if err != nil {
			return ir.String(fmt.Sprint(val))
		}
		return ir.String(b)
	}
	cell, err := ir.FromAny(v)
	if err != nil {
		return ir.String(fmt.Sprint(v))
	}
	return cell
}

// defaultValue returns the stored form of c's default at time now.
func defaultValue(c datastore.ColumnDefinition, now time.Time) (any, error) {
	d := *c.Default
	switch strings.ToUpper(d) {
	case "NULL":
		return nil, nil
	case "CURRENT_TIMESTAMP":
		return primitive.NewDateTimeFromTime(now), nil
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	}
	switch {
	case c.Type.Kind.Integral():
		return strconv.ParseInt(d, 10, 64)
	case c.Type.Kind == datastore.Float:
		return strconv.ParseFloat(d, 64)
	case c.Type.Kind == datastore.Boolean:
		return d == "1", nil
	}
	return encodeValue(&c, d)
}

// encodeRow turns row into a document with fields in sorted order. With
// defaults, defined columns missing from row get their default.
func encodeRow(def *datastore.TableDefinition, row datastore.Row, now time.Time, defaults bool) (bson.D, error) {
	doc := make(bson.D, 0, len(row))
	for _, k := range slices.Sorted(maps.Keys(row)) {
		v, err := encodeValue(column(def, k), row[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		doc = append(doc, bson.E{Key: k, Value: v})
	}
	if !defaults || def == nil {
		return doc, nil
	}
	for _, c := range def.Columns {
		if c.Default == nil || hasField(row, c.Name) {
			continue
		}
		v, err := defaultValue(c, now)
		if err != nil {
			return nil, fmt.Errorf("default of %s: %w", c.Name, err)
		}
		doc = append(doc, bson.E{Key: c.Name, Value: v})
	}
	return doc, nil
}

// fieldTypes lowers filter operands to the stored form of their columns.
type fieldTypes struct {
	def *datastore.TableDefinition
}

// Encode leaves an operand the column cannot hold as it is; it then matches
// no stored value, like the same comparison in SQL.
func (t fieldTypes) Encode(field string, v any) any {
	enc, err := encodeValue(column(t.def, field), v)
	if err != nil {
		return v
	}
	return enc
}

func (t fieldTypes) IsDate(field string) bool {
	c := column(t.def, field)
	return c != nil && isTimeKind(c.Type.Kind)
}

func column(def *datastore.TableDefinition, name string) *datastore.ColumnDefinition {
	if def == nil {
		return nil
	}
	if c, ok := def.Column(name); ok {
		return &c
	}
	return nil
}

func hasField(row datastore.Row, name string) bool {
	for k := range row {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// keyQuery selects the document whose keys equal those of doc.
func keyQuery(doc bson.D, keys []string) bson.D {
	q := make(bson.D, 0, len(keys))
	for _, k := range keys {
		var v any
		for _, e := range doc {
			if strings.EqualFold(e.Key, k) {
				v = e.Value
				break
			}
		}
		q = append(q, bson.E{Key: k, Value: v})
	}
	return q
}

// toMap indexes a document by field name.
func toMap(doc bson.D) bson.M {
	m := make(bson.M, len(doc))
	for _, e := range doc {
		m[e.Key] = e.Value
	}
	return m
}
