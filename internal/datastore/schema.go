package datastore

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnKind is the portable column type.
type ColumnKind string

const (
	Integer     ColumnKind = "integer"
	BigInteger  ColumnKind = "biginteger"
	TinyInteger ColumnKind = "tinyinteger"
	Char        ColumnKind = "char"
	String      ColumnKind = "string"
	Text        ColumnKind = "text"
	Blob        ColumnKind = "blob"
	Date        ColumnKind = "date"
	DateTime    ColumnKind = "datetime"
	Boolean     ColumnKind = "boolean"
	Float       ColumnKind = "float"
)

var columnKinds = []ColumnKind{
	Integer, BigInteger, TinyInteger, Char, String, Text, Blob, Date, DateTime, Boolean, Float,
}

// ColumnType is a kind plus its size for Char and String.
type ColumnType struct {
	Kind ColumnKind `yaml:"kind" json:"kind"`
	Size int        `yaml:"size,omitempty" json:"size,omitempty"`
}

// Sized reports whether the kind takes a size.
func (k ColumnKind) Sized() bool {
	return k == Char || k == String
}

// Integral reports whether the kind stores integers.
func (k ColumnKind) Integral() bool {
	return k == Integer || k == BigInteger || k == TinyInteger
}

func (t ColumnType) String() string {
	if t.Kind.Sized() {
		return fmt.Sprintf("%s(%d)", t.Kind, t.Size)
	}
	return string(t.Kind)
}

// Validate checks the kind is known and sized kinds carry a positive size.
func (t ColumnType) Validate() error {
	if !slices.Contains(columnKinds, t.Kind) {
		return fmt.Errorf("unknown column kind %q", t.Kind)
	}
	if t.Kind.Sized() && t.Size <= 0 {
		return fmt.Errorf("column kind %s requires a size", t.Kind)
	}
	return nil
}

// ParseColumnType parses the textual form produced by ColumnType.String,
// e.g. "string(36)" or "integer".
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	kind, size := s, 0
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return ColumnType{}, fmt.Errorf("malformed column type %q", s)
		}
		kind = s[:open]
		if _, err := fmt.Sscanf(s[open+1:len(s)-1], "%d", &size); err != nil {
			return ColumnType{}, fmt.Errorf("malformed size in %q: %w", s, err)
		}
	}
	t := ColumnType{Kind: ColumnKind(kind), Size: size}
	if !t.Kind.Sized() {
		t.Size = 0
	}
	return t, t.Validate()
}

// ColumnDefinition describes one column of a table.
type ColumnDefinition struct {
	Name          string     `yaml:"name" json:"name"`
	Type          ColumnType `yaml:"type" json:"type"`
	IsPrimary     bool       `yaml:"primary,omitempty" json:"primary,omitempty"`
	AutoIncrement bool       `yaml:"auto_increment,omitempty" json:"auto_increment,omitempty"`
	Default       *string    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Equal compares name, type, key flags and default. Names compare
// case-insensitively because relational backends fold identifiers.
func (c ColumnDefinition) Equal(o ColumnDefinition) bool {
	if !strings.EqualFold(c.Name, o.Name) || c.Type != o.Type ||
		c.IsPrimary != o.IsPrimary || c.AutoIncrement != o.AutoIncrement {
		return false
	}
	if (c.Default == nil) != (o.Default == nil) {
		return false
	}
	return c.Default == nil || *c.Default == *o.Default
}

// IndexDefinition describes a secondary index.
type IndexDefinition struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []string `yaml:"columns" json:"columns"`
	Unique  bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// TableDefinition describes a table at one schema version.
type TableDefinition struct {
	Name    string             `yaml:"name" json:"name"`
	Columns []ColumnDefinition `yaml:"columns" json:"columns"`
	Indices []IndexDefinition  `yaml:"indices,omitempty" json:"indices,omitempty"`
}

// PrimaryKey returns the names of the primary-key columns in declaration order.
func (t TableDefinition) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.IsPrimary {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// Column returns the named column (case-insensitive).
func (t TableDefinition) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// Validate checks names, types and index references.
func (t TableDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	autoInc := 0
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s: column name is empty", t.Name)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[key] = true
		if err := c.Type.Validate(); err != nil {
			return fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		if c.AutoIncrement {
			autoInc++
			if !c.IsPrimary || !c.Type.Kind.Integral() {
				return fmt.Errorf("table %s column %s: auto increment requires an integer primary key", t.Name, c.Name)
			}
		}
	}
	if autoInc > 0 && len(t.PrimaryKey()) > 1 {
		return fmt.Errorf("table %s: auto increment requires a single-column primary key", t.Name)
	}
	for _, idx := range t.Indices {
		if idx.Name == "" || len(idx.Columns) == 0 {
			return fmt.Errorf("table %s: index needs a name and columns", t.Name)
		}
		for _, col := range idx.Columns {
			if !seen[strings.ToLower(col)] {
				return fmt.Errorf("table %s index %s: unknown column %s", t.Name, idx.Name, col)
			}
		}
	}
	return nil
}

// ColumnDiff is the difference between a live table and its definition.
type ColumnDiff struct {
	// Added are defined columns missing from the live table.
	Added []ColumnDefinition
	// Removed are live columns absent from the definition.
	Removed []ColumnDefinition
	// Changed pairs a live column with its differing definition.
	Changed []ColumnChange
}

// ColumnChange is one column whose live shape differs from the definition.
type ColumnChange struct {
	Live    ColumnDefinition
	Defined ColumnDefinition
}

// Empty reports whether live and defined columns match.
func (d ColumnDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffColumns compares live columns against defined ones by name.
func DiffColumns(live, defined []ColumnDefinition) ColumnDiff {
	var d ColumnDiff
	byName := make(map[string]ColumnDefinition, len(live))
	for _, c := range live {
		byName[strings.ToLower(c.Name)] = c
	}
	definedNames := make(map[string]bool, len(defined))
	for _, want := range defined {
		key := strings.ToLower(want.Name)
		definedNames[key] = true
		have, ok := byName[key]
		switch {
		case !ok:
			d.Added = append(d.Added, want)
		case !have.Equal(want):
			d.Changed = append(d.Changed, ColumnChange{Live: have, Defined: want})
		}
	}
	for _, c := range live {
		if !definedNames[strings.ToLower(c.Name)] {
			d.Removed = append(d.Removed, c)
		}
	}
	return d
}

// Describe renders the diff for logs and validation reports.
func (d ColumnDiff) Describe() []string {
	var out []string
	for _, c := range d.Added {
		out = append(out, fmt.Sprintf("missing column %s %s", c.Name, c.Type))
	}
	for _, c := range d.Removed {
		out = append(out, fmt.Sprintf("unexpected column %s %s", c.Name, c.Type))
	}
	for _, ch := range d.Changed {
		out = append(out, fmt.Sprintf("column %s is %s, want %s", ch.Defined.Name, describeColumn(ch.Live), describeColumn(ch.Defined)))
	}
	return out
}

func describeColumn(c ColumnDefinition) string {
	s := c.Type.String()
	if c.IsPrimary {
		s += " primary"
	}
	if c.AutoIncrement {
		s += " auto_increment"
	}
	if c.Default != nil {
		s += fmt.Sprintf(" default %q", *c.Default)
	}
	return s
}

// StringPtr returns a pointer to s, for ColumnDefinition.Default literals.
func StringPtr(s string) *string { return &s }

// UnmarshalYAML accepts the short form "string(36)" or a mapping with kind
// and size.
func (t *ColumnType) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseColumnType(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*t = parsed
		return nil
	}
	var raw struct {
		Kind ColumnKind `yaml:"kind"`
		Size int        `yaml:"size"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*t = ColumnType{Kind: raw.Kind, Size: raw.Size}
	return t.Validate()
}

// MarshalYAML writes the short form.
func (t ColumnType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalJSON accepts the same two forms as UnmarshalYAML.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var short string
	if err := json.Unmarshal(data, &short); err == nil {
		parsed, err := ParseColumnType(short)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	var raw struct {
		Kind ColumnKind `json:"kind"`
		Size int        `json:"size"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ColumnType{Kind: raw.Kind, Size: raw.Size}
	return t.Validate()
}

// MarshalJSON writes the short form.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
