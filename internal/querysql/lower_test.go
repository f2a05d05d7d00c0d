package querysql

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/queryir"
)

const authUUID = "6f1f6a3e-1d4c-4c8e-9a55-8e1b2f0c9d11"

var placeholderRe = regexp.MustCompile(`\?[A-Za-z0-9_]+`)

// renderFragment lists the SQL followed by one "name = value (type)" line per
// placeholder in SQL order.
func renderFragment(frag Fragment) []byte {
	var b strings.Builder
	b.WriteString(frag.SQL)
	b.WriteByte('\n')
	for _, name := range placeholderRe.FindAllString(frag.SQL, -1) {
		v := frag.Params[name]
		fmt.Fprintf(&b, "%s = %v (%T)\n", name, v, v)
	}
	return []byte(b.String())
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestLower_Golden(t *testing.T) {
	tests := []struct {
		name   string
		filter *queryir.Filter
	}{
		{
			name:   "auth_lookup",
			filter: queryir.New().Eq("UUID", authUUID).Eq("accountType", "grid"),
		},
		{
			name: "all_categories",
			filter: &queryir.Filter{
				EqualsAnd:         map[string]any{"a": 1},
				EqualsOr:          map[string]any{"c": 3, "b": 2},
				EqualsOrMulti:     map[string][]any{"d": {4, 5}},
				NotEquals:         map[string]any{"e": "x"},
				LikeAnd:           map[string]string{"f": "p%"},
				LikeOr:            map[string]string{"g": "q%"},
				LikeOrMulti:       map[string][]string{"h": {"r%", "s_"}},
				BitAnd:            map[string]uint32{"i": 1},
				BitOr:             map[string]uint32{"j": 2},
				GreaterThanAnd:    map[string]int64{"k": 10},
				GreaterThanOr:     map[string]int64{"l": 11},
				GreaterOrEqualAnd: map[string]int64{"m": 12},
				LessThanAnd:       map[string]int64{"n": 13},
				LessThanOr:        map[string]int64{"o": 14},
				LessOrEqualAnd:    map[string]int64{"p": 15},
				SubFilters:        []*queryir.Filter{queryir.New().Eq("q", 16)},
			},
		},
		{
			name: "nested_sub_filters",
			filter: queryir.New().Eq("region", "r1").Sub(
				queryir.New().OrLike("name", "a%").OrLike("title", "b%"),
				queryir.New(),
				queryir.New().Sub(queryir.New().Gt("level", 3).Lt("level", 9)),
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, _ := Lower(tt.filter, '?', 0)
			newGoldie(t).Assert(t, "lower_"+tt.name, renderFragment(frag))
		})
	}
}

func TestLower_AuthScenario(t *testing.T) {
	f := queryir.New().Eq("UUID", authUUID).Eq("accountType", "grid")

	frag, next := Lower(f, '?', 0)

	assert.Equal(t, "(UUID = ?where_AND_1UUID AND accountType = ?where_AND_2accountType)", frag.SQL)
	assert.Equal(t, map[string]any{
		"?where_AND_1UUID":        authUUID,
		"?where_AND_2accountType": "grid",
	}, frag.Params)
	assert.Equal(t, 2, next)
}

func TestLower_EmptyFilter(t *testing.T) {
	for _, f := range []*queryir.Filter{nil, queryir.New(), queryir.New().Sub(queryir.New(), queryir.New())} {
		frag, next := Lower(f, '?', 7)
		assert.True(t, frag.Empty())
		assert.Empty(t, frag.Params)
		assert.Equal(t, "", frag.Where())
		assert.Equal(t, 7, next)
	}
}

func TestLower_EmptyMultiValues(t *testing.T) {
	f := &queryir.Filter{
		EqualsOrMulti: map[string][]any{"a": {}},
		LikeOrMulti:   map[string][]string{"b": nil},
	}
	require.Positive(t, f.Count())

	frag, next := Lower(f, '?', 3)

	assert.True(t, frag.Empty())
	assert.Equal(t, "", frag.Where())
	assert.Equal(t, 3, next)

	stmt, err := SQLite.Select("t", []string{"a"}, f, datastore.QueryOptions{})
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "WHERE")
}

func TestLower_CounterChains(t *testing.T) {
	first, next := Lower(queryir.New().Eq("a", 1), '@', 0)
	second, last := Lower(queryir.New().Eq("a", 2), '@', next)

	assert.Equal(t, "(a = @where_AND_1a)", first.SQL)
	assert.Equal(t, "(a = @where_AND_2a)", second.SQL)
	assert.Equal(t, 2, last)
}

func TestLower_SanitizesPlaceholderNames(t *testing.T) {
	f := queryir.New().
		Eq("`flags`", 1).
		Eq("a.b", 2).
		Eq("first name", "x").
		Eq("lower(name)", "bob")

	frag, _ := Lower(f, '?', 0)

	assert.Equal(t,
		"(`flags` = ?where_AND_1flags AND a.b = ?where_AND_2a_b AND first name = ?where_AND_3first___name AND lower(name) = ?where_AND_4lower__name)",
		frag.SQL)
	assert.Len(t, frag.Params, 4)
}

func TestLower_PlaceholdersAreUnique(t *testing.T) {
	tests := []struct {
		name string
		f    *queryir.Filter
		want int
	}{
		{
			name: "same field in every category and nested filter",
			f: queryir.New().
				Eq("id", 1).Or("id", 2).In("id", 3, 4).NotEq("id", 5).
				Sub(queryir.New().Eq("id", 6).Sub(queryir.New().Eq("id", 7))),
			want: 7,
		},
		{
			// Counter 1 with "1a" and counter 11 with "a".
			name: "field starting with a digit",
			f: queryir.New().
				Eq("1a", "first").
				Or("o1", 1).Or("o2", 2).Or("o3", 3).Or("o4", 4).Or("o5", 5).
				Or("o6", 6).Or("o7", 7).Or("o8", 8).Or("o9", 9).
				Sub(queryir.New().Eq("a", "second")),
			want: 11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, next := Lower(tt.f, '?', 0)

			names := placeholderRe.FindAllString(frag.SQL, -1)
			assert.Len(t, names, tt.want)
			assert.Len(t, frag.Params, tt.want)
			seen := map[string]bool{}
			for _, n := range names {
				assert.False(t, seen[n], "duplicate placeholder %s", n)
				seen[n] = true
			}
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestLower_DigitLeadingField(t *testing.T) {
	f := queryir.New().Eq("1a", "first").Sub(queryir.New().Eq("a", "second"))

	frag, _ := Lower(f, '?', 10)

	assert.Equal(t, "((1a = ?where_AND_11_1a) AND (a = ?where_AND_12a))", frag.SQL)
	assert.Equal(t, map[string]any{"?where_AND_11_1a": "first", "?where_AND_12a": "second"}, frag.Params)
}

func TestLower_ValuesNeverInterpolated(t *testing.T) {
	hostile := []string{
		"'; DROP TABLE auth; --",
		`" OR 1=1 --`,
		"%') OR ('1'='1",
	}
	for _, v := range hostile {
		f := queryir.New().Eq("UUID", v).Like("name", v).In("type", v)
		frag, _ := Lower(f, '?', 0)

		assert.NotContains(t, frag.SQL, v)
		values := make([]any, 0, len(frag.Params))
		for _, p := range frag.Params {
			values = append(values, p)
		}
		assert.ElementsMatch(t, []any{v, v, v}, values)

		stmt, err := SQLite.Select("auth", []string{"UUID"}, f, datastore.QueryOptions{})
		require.NoError(t, err)
		assert.NotContains(t, stmt.SQL, v)
		assert.Equal(t, strings.Count(stmt.SQL, "?"), len(stmt.Args))
	}
}

func TestLower_DoesNotMutateFilter(t *testing.T) {
	f := queryir.New().Eq("a", 1).In("b", 1, 2).Sub(queryir.New().Like("c", "x%"))
	before := f.Clone()

	first, _ := Lower(f, '?', 0)
	second, _ := Lower(f, '?', 0)

	assert.Equal(t, before, f)
	assert.Equal(t, first, second)
}

func TestSanitizeField(t *testing.T) {
	tests := map[string]string{
		"UUID":           "UUID",
		"`key`":          "key",
		`"quoted"`:       "quoted",
		"COUNT(x)":       "COUNT__x",
		"two words":      "two___words",
		"t.col":          "t_col",
		"ünïcode":        "_n_code",
		"a-b":            "a_b",
		"IFNULL(a, 'b')": "IFNULL__a____b",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeField(in), in)
	}
}
