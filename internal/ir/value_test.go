package ir

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	id := uuid.MustParse("6f1f6a3e-1d4c-4c8e-9a55-8e1b2f0c9d11")
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"string", "grid", String("grid")},
		{"bytes", []byte{1, 2}, Blob{1, 2}},
		{"bool", true, Bool(true)},
		{"int", 42, Int(42)},
		{"int32", int32(-7), Int(-7)},
		{"uint32", uint32(7), Int(7)},
		{"float", 1.5, Float(1.5)},
		{"time is UTC text", ts, String("2026-03-04 04:06:07")},
		{"stringer", id, String(id.String())},
		{"value passthrough", Int(3), Int(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "want %#v got %#v", tt.want, got)
		})
	}
}

func TestFromAny_Rejects(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)

	_, err = FromAny(uint64(1 << 63))
	assert.Error(t, err, "uint64 beyond int64 range must be rejected")
}

func TestValue_StringEncoding(t *testing.T) {
	assert.Equal(t, "", Null{}.String())
	assert.Equal(t, "-12", Int(-12).String())
	assert.Equal(t, "0.25", Float(0.25).String())
	assert.Equal(t, "abc", String("abc").String())
	assert.Equal(t, "1", Bool(true).String())
	assert.Equal(t, "0", Bool(false).String())
	assert.Equal(t, "hi", Blob("hi").String())
}

func TestToAny_RoundTrip(t *testing.T) {
	for _, in := range []any{nil, int64(5), 2.5, "x", []byte("b"), true} {
		v, err := FromAny(in)
		require.NoError(t, err)
		assert.Equal(t, in, ToAny(v))
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Blob("a"), Blob("a")))
	assert.False(t, Equal(Blob("a"), String("a")))
	assert.False(t, Equal(Int(1), Float(1)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, Null{}))
}

func TestMarshalValue(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{Null{}, "null"},
		{Int(3), "3"},
		{Float(1.5), "1.5"},
		{String(`a"b`), `"a\"b"`},
		{Blob("hi"), `"aGk="`},
		{Bool(false), "false"},
	}
	for _, tt := range tests {
		got, err := MarshalValue(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}
}
