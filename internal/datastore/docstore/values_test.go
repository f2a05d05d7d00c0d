package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
)

var at = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func dateColumn(name string) *datastore.ColumnDefinition {
	return &datastore.ColumnDefinition{Name: name, Type: datastore.ColumnType{Kind: datastore.DateTime}}
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name string
		col  *datastore.ColumnDefinition
		in   any
		want any
	}{
		{"int", nil, int32(7), int64(7)},
		{"uint", nil, uint8(3), int64(3)},
		{"string", nil, "x", "x"},
		{"bool", nil, true, true},
		{"nil", nil, nil, nil},
		{"time_anywhere", nil, at, primitive.NewDateTimeFromTime(at)},
		{"date_string", dateColumn("validity"), "2026-03-04 05:06:07", primitive.NewDateTimeFromTime(at)},
		{"rfc3339", dateColumn("validity"), "2026-03-04T05:06:07Z", primitive.NewDateTimeFromTime(at)},
		{"date_only", &datastore.ColumnDefinition{Name: "d", Type: datastore.ColumnType{Kind: datastore.Date}}, "2026-03-04",
			primitive.NewDateTimeFromTime(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))},
		{"date_column_null", dateColumn("validity"), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeValue(tt.col, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeValue_Errors(t *testing.T) {
	_, err := encodeValue(dateColumn("validity"), "soon")
	assert.ErrorContains(t, err, "validity")

	_, err = encodeValue(nil, struct{}{})
	assert.Error(t, err)
}

func TestDecodeValue(t *testing.T) {
	oid := primitive.NewObjectID()
	tests := []struct {
		name string
		in   any
		want ir.Value
	}{
		{"missing", nil, ir.Null{}},
		{"int32", int32(4), ir.Int(4)},
		{"int64", int64(5), ir.Int(5)},
		{"double", 1.5, ir.Float(1.5)},
		{"string", "s", ir.String("s")},
		{"bool", false, ir.Bool(false)},
		{"bytes", []byte{1, 2}, ir.Blob{1, 2}},
		{"binary", primitive.Binary{Data: []byte{3}}, ir.Blob{3}},
		{"date", primitive.NewDateTimeFromTime(at), ir.String("2026-03-04 05:06:07")},
		{"object_id", oid, ir.String(oid.Hex())},
		{"nested", bson.D{{Key: "a", Value: int32(1)}}, ir.String(`{"v":{"a":1}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeValue(tt.in))
		})
	}
}

func TestDefaultValue(t *testing.T) {
	col := func(kind datastore.ColumnKind, def string) datastore.ColumnDefinition {
		return datastore.ColumnDefinition{Name: "c", Type: datastore.ColumnType{Kind: kind, Size: 8}, Default: datastore.StringPtr(def)}
	}
	tests := []struct {
		name string
		col  datastore.ColumnDefinition
		want any
	}{
		{"null", col(datastore.String, "NULL"), nil},
		{"now", col(datastore.DateTime, "current_timestamp"), primitive.NewDateTimeFromTime(at)},
		{"true", col(datastore.Boolean, "TRUE"), true},
		{"bool_digit", col(datastore.Boolean, "0"), false},
		{"integer", col(datastore.Integer, "42"), int64(42)},
		{"big", col(datastore.BigInteger, "-9"), int64(-9)},
		{"float", col(datastore.Float, "0.25"), 0.25},
		{"string", col(datastore.String, "login"), "login"},
		{"datetime", col(datastore.DateTime, "2026-03-04 05:06:07"), primitive.NewDateTimeFromTime(at)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := defaultValue(tt.col, at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := defaultValue(col(datastore.Integer, "many"), at)
	assert.Error(t, err)
}

func TestEncodeRow(t *testing.T) {
	def := &datastore.TableDefinition{
		Name: "tokens",
		Columns: []datastore.ColumnDefinition{
			{Name: "UUID", Type: datastore.ColumnType{Kind: datastore.Char, Size: 36}, IsPrimary: true},
			{Name: "scope", Type: datastore.ColumnType{Kind: datastore.String, Size: 8}, Default: datastore.StringPtr("all")},
			{Name: "created", Type: datastore.ColumnType{Kind: datastore.DateTime}, Default: datastore.StringPtr("CURRENT_TIMESTAMP")},
		},
	}
	row := datastore.Row{"uuid": "u", "Scope": "one", "extra": 1}

	doc, err := encodeRow(def, row, at, true)
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "Scope", Value: "one"},
		{Key: "extra", Value: int64(1)},
		{Key: "uuid", Value: "u"},
		{Key: "created", Value: primitive.NewDateTimeFromTime(at)},
	}, doc, "defaults only fill columns the row lacks, matched case-insensitively")

	doc, err = encodeRow(def, datastore.Row{"UUID": "u"}, at, false)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "UUID", Value: "u"}}, doc)

	doc, err = encodeRow(nil, datastore.Row{"b": 2, "a": 1}, at, true)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "a", Value: int64(1)}, {Key: "b", Value: int64(2)}}, doc)
}

func TestKeyQuery(t *testing.T) {
	doc := bson.D{{Key: "uuid", Value: "u"}, {Key: "token", Value: "t"}, {Key: "other", Value: 1}}

	assert.Equal(t,
		bson.D{{Key: "UUID", Value: "u"}, {Key: "token", Value: "t"}},
		keyQuery(doc, []string{"UUID", "token"}))
	assert.Equal(t,
		bson.D{{Key: "missing", Value: nil}},
		keyQuery(doc, []string{"missing"}))
}

func TestAllColumns(t *testing.T) {
	docs := []bson.D{
		{{Key: IDField, Value: 1}, {Key: "b", Value: 1}},
		{{Key: IDField, Value: 2}, {Key: "a", Value: 1}, {Key: "b", Value: 2}},
	}
	assert.Equal(t, []string{"b", "a"}, allColumns(nil, docs))

	def := &datastore.TableDefinition{Columns: []datastore.ColumnDefinition{{Name: "z"}, {Name: "y"}}}
	assert.Equal(t, []string{"z", "y"}, allColumns(def, docs))
}
