package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysByUTF16(t *testing.T) {
	// U+1F600 (surrogate pair D83D DE00) sorts before U+FF61 in UTF-16 but
	// after it in UTF-8.
	obj := map[string]any{
		"\uff61":     "b",
		"\U0001F600": "a",
		"a":          "c",
	}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"c\",\"\U0001F600\":\"a\",\"\uff61\":\"b\"}", string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_LineSeparatorsNotEscaped(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	// A literal backslash followed by u2028 text stays escaped.
	got, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshalCanonical_Nested(t *testing.T) {
	v := map[string]any{
		"columns": []any{
			map[string]any{"name": "UUID", "primary": true},
			map[string]any{"name": "count", "size": 11},
		},
		"drops": []string{"old"},
	}
	got, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t,
		`{"columns":[{"name":"UUID","primary":true},{"name":"count","size":11}],"drops":["old"]}`,
		string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	for _, v := range []any{nil, Null{}, 1.5, Float(2), struct{}{}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%T must be rejected", v)
	}
}

func TestChecksum_DomainSeparated(t *testing.T) {
	a, err := Checksum(DomainSchemaStep, map[string]any{"version": 1})
	require.NoError(t, err)
	b, err := Checksum("other/domain", map[string]any{"version": 1})
	require.NoError(t, err)
	c, err := Checksum(DomainSchemaStep, map[string]any{"version": 1})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}
