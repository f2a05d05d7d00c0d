package queryir

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datamgr/internal/ir"
)

func TestValidate_ValidFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
	}{
		{"nil", nil},
		{"empty", New()},
		{"auth lookup", New().Eq("UUID", uuid.New()).Eq("accountType", "grid")},
		{"typed values", New().Eq("a", ir.Int(1)).Or("b", []byte("x")).NotEq("c", true)},
		{"time value", New().Eq("created", time.Now())},
		{"nested", New().Sub(New().In("id", 1, 2), New().Lt("n", 3))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.filter)
			assert.True(t, res.Valid, "errors: %v", res.Errors)
			assert.Empty(t, res.Errors)
			assert.NoError(t, res.Err())
		})
	}
}

func TestValidate_EmptyFieldName(t *testing.T) {
	res := Validate(New().Eq("", 1))

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "equals_and: empty field name", res.Errors[0])
}

func TestValidate_EmptyMultiList(t *testing.T) {
	f := &Filter{EqualsOrMulti: map[string][]any{"id": {}}}

	res := Validate(f)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `equals_or_multi: field "id" has no values`)
}

func TestValidate_NullComparison(t *testing.T) {
	res := Validate(New().Eq("a", nil).NotEq("b", ir.Null{}))

	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "compared to null")
}

func TestValidate_UnsupportedValue(t *testing.T) {
	res := Validate(New().Eq("a", struct{}{}))

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `field "a"`)
}

func TestValidate_SubFilterPaths(t *testing.T) {
	f := New().Sub(New().Eq("ok", 1), nil, New().Sub(New().Like("", "x")))

	res := Validate(f)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "sub_filters[1]: nil sub-filter", res.Errors[0])
	assert.Equal(t, "sub_filters[2].sub_filters[0].like_and: empty field name", res.Errors[1])
}

func TestValidate_Cycle(t *testing.T) {
	f := New().Eq("a", 1)
	f.Sub(f)

	res := Validate(f)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "sub_filters[0]: sub-filter cycle", res.Errors[0])
}

func TestValidate_SharedSubFilterIsNotACycle(t *testing.T) {
	shared := New().Eq("x", 1)
	f := New().Sub(shared, shared)

	assert.True(t, Validate(f).Valid)
}

func TestValidationResult_Err(t *testing.T) {
	res := Validate(New().Eq("", 1).Or("", 2))

	err := res.Err()
	require.Error(t, err)
	assert.Equal(t, "invalid filter: equals_and: empty field name (and 1 more)", err.Error())
}
