package datastore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func authTable() TableDefinition {
	return TableDefinition{
		Name: "auth",
		Columns: []ColumnDefinition{
			{Name: "UUID", Type: ColumnType{Kind: Char, Size: 36}, IsPrimary: true},
			{Name: "passwordHash", Type: ColumnType{Kind: String, Size: 255}},
			{Name: "passwordSalt", Type: ColumnType{Kind: String, Size: 255}},
			{Name: "accountType", Type: ColumnType{Kind: String, Size: 32}, IsPrimary: true},
		},
	}
}

func TestParseColumnType(t *testing.T) {
	tests := []struct {
		in      string
		want    ColumnType
		wantErr bool
	}{
		{"integer", ColumnType{Kind: Integer}, false},
		{"String(36)", ColumnType{Kind: String, Size: 36}, false},
		{" char(1) ", ColumnType{Kind: Char, Size: 1}, false},
		{"text(5)", ColumnType{Kind: Text}, false},
		{"string", ColumnType{}, true},
		{"varchar(3)", ColumnType{}, true},
		{"string(x)", ColumnType{}, true},
		{"string(3", ColumnType{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColumnType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnType_YAMLForms(t *testing.T) {
	var cols []ColumnDefinition
	err := yaml.Unmarshal([]byte(`
- name: UUID
  type: char(36)
  primary: true
- name: loginCount
  type: {kind: integer}
  default: "0"
`), &cols)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, ColumnType{Kind: Char, Size: 36}, cols[0].Type)
	assert.True(t, cols[0].IsPrimary)
	assert.Equal(t, ColumnType{Kind: Integer}, cols[1].Type)
	require.NotNil(t, cols[1].Default)
	assert.Equal(t, "0", *cols[1].Default)

	out, err := yaml.Marshal(ColumnType{Kind: String, Size: 8})
	require.NoError(t, err)
	assert.Equal(t, "string(8)\n", string(out))
}

func TestColumnType_JSONForms(t *testing.T) {
	var a, b ColumnType
	require.NoError(t, json.Unmarshal([]byte(`"string(12)"`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"string","size":12}`), &b))
	assert.Equal(t, a, b)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"nope"}`), &b))
}

func TestTableDefinition_Validate(t *testing.T) {
	assert.NoError(t, authTable().Validate())

	bad := []TableDefinition{
		{Name: "", Columns: authTable().Columns},
		{Name: "t"},
		{Name: "t", Columns: []ColumnDefinition{{Name: "a", Type: ColumnType{Kind: Integer}}, {Name: "A", Type: ColumnType{Kind: Integer}}}},
		{Name: "t", Columns: []ColumnDefinition{{Name: "a", Type: ColumnType{Kind: String}}}},
		{Name: "t", Columns: []ColumnDefinition{{Name: "a", Type: ColumnType{Kind: Text}, IsPrimary: true, AutoIncrement: true}}},
		{Name: "t", Columns: []ColumnDefinition{{Name: "a", Type: ColumnType{Kind: Integer}}}, Indices: []IndexDefinition{{Name: "i", Columns: []string{"b"}}}},
	}
	for i, def := range bad {
		assert.Error(t, def.Validate(), "case %d", i)
	}
}

func TestTableDefinition_PrimaryKeyAndColumn(t *testing.T) {
	def := authTable()
	assert.Equal(t, []string{"UUID", "accountType"}, def.PrimaryKey())

	col, ok := def.Column("uuid")
	require.True(t, ok)
	assert.Equal(t, "UUID", col.Name)
	_, ok = def.Column("missing")
	assert.False(t, ok)
}

func TestDiffColumns(t *testing.T) {
	live := []ColumnDefinition{
		{Name: "uuid", Type: ColumnType{Kind: Char, Size: 36}, IsPrimary: true},
		{Name: "passwordHash", Type: ColumnType{Kind: String, Size: 64}},
		{Name: "legacy", Type: ColumnType{Kind: Text}},
		{Name: "accountType", Type: ColumnType{Kind: String, Size: 32}, IsPrimary: true},
	}

	diff := DiffColumns(live, authTable().Columns)

	require.Len(t, diff.Added, 1)
	assert.Equal(t, "passwordSalt", diff.Added[0].Name)
	require.Len(t, diff.Removed, 1)
	assert.Equal(t, "legacy", diff.Removed[0].Name)
	require.Len(t, diff.Changed, 1)
	assert.Equal(t, "passwordHash", diff.Changed[0].Defined.Name)
	assert.False(t, diff.Empty())

	assert.Equal(t, []string{
		"missing column passwordSalt string(255)",
		"unexpected column legacy text",
		"column passwordHash is string(64), want string(255)",
	}, diff.Describe())
}

func TestColumnDefinition_EqualDefaults(t *testing.T) {
	a := ColumnDefinition{Name: "n", Type: ColumnType{Kind: Integer}, Default: StringPtr("0")}
	b := a
	b.Default = StringPtr("0")
	assert.True(t, a.Equal(b))

	b.Default = nil
	assert.False(t, a.Equal(b))

	b.Default = StringPtr("1")
	assert.False(t, a.Equal(b))
}
