package querysql

import (
	"fmt"
	"strconv"
	"strings"
)

// PlaceholderStyle is a driver's positional parameter syntax.
type PlaceholderStyle int

const (
	// Question renders every parameter as "?" (SQLite, MySQL).
	Question PlaceholderStyle = iota
	// Dollar renders parameters as "$1", "$2", ... (PostgreSQL).
	Dollar
)

// Bind rewrites the named placeholders in sql into the driver's positional
// style and returns the matching argument list.
//
// A placeholder is prefix followed by the longest run of [A-Za-z0-9_]. A
// prefix byte not followed by an identifier rune is left as is. A name
// missing from params is an error. With Dollar, repeated names reuse their
// first position.
func Bind(sql string, params map[string]any, prefix byte, style PlaceholderStyle) (string, []any, error) {
	if strings.IndexByte(sql, prefix) < 0 {
		return sql, nil, nil
	}

	var (
		b         strings.Builder
		args      []any
		positions map[string]int
	)
	if style == Dollar {
		positions = make(map[string]int)
	}
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]
		if c == '\'' {
			// Copy string literals untouched.
			end := literalEnd(sql, i)
			b.WriteString(sql[i:end])
			i = end
			continue
		}
		if c != prefix {
			b.WriteByte(c)
			i++
			continue
		}

		j := i + 1
		for j < len(sql) && isIdentRune(rune(sql[j])) {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			i++
			continue
		}

		name := sql[i:j]
		val, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("bind: no value for placeholder %s", name)
		}
		switch style {
		case Dollar:
			pos, seen := positions[name]
			if !seen {
				args = append(args, val)
				pos = len(args)
				positions[name] = pos
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(pos))
		default:
			args = append(args, val)
			b.WriteByte('?')
		}
		i = j
	}
	return b.String(), args, nil
}

// literalEnd returns the index just past the single-quoted literal starting
// at i. Doubled quotes are escapes.
func literalEnd(sql string, i int) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != '\'' {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == '\'' {
			j++
			continue
		}
		return j + 1
	}
	return len(sql)
}
