package datastore

import "strings"

// Capability is a bitset of optional backend traits.
type Capability uint32

const (
	// CapSchema means the store implements SchemaManager.
	CapSchema Capability = 1 << iota
	// CapRawSQL means the store implements RawSQL.
	CapRawSQL
	// CapNativeUpsert means InsertOrUpdate and Replace are single statements.
	CapNativeUpsert
	// CapServerClock means DeleteByTime compares against the server's clock.
	CapServerClock
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapSchema, "schema"},
	{CapRawSQL, "raw_sql"},
	{CapNativeUpsert, "native_upsert"},
	{CapServerClock, "server_clock"},
}

// Has reports whether all bits of o are set.
func (c Capability) Has(o Capability) bool { return c&o == o }

func (c Capability) String() string {
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// AsSchema returns the store's SchemaManager, or a NotSupported error.
func AsSchema(ds DataStore) (SchemaManager, error) {
	if sm, ok := ds.(SchemaManager); ok && ds.Capabilities().Has(CapSchema) {
		return sm, nil
	}
	return nil, NotSupported(ds.Kind(), "schema management")
}

// AsRawSQL returns the store's RawSQL, or a NotSupported error.
func AsRawSQL(ds DataStore) (RawSQL, error) {
	if raw, ok := ds.(RawSQL); ok && ds.Capabilities().Has(CapRawSQL) {
		return raw, nil
	}
	return nil, NotSupported(ds.Kind(), "raw SQL")
}
