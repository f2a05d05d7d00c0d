package migration

import (
	"fmt"

	"github.com/roach88/datamgr/internal/datastore"
)

// StateKind classifies a store's schema relative to a set.
type StateKind int

const (
	// NoSchema means no version marker exists for the set.
	NoSchema StateKind = iota
	// CurrentVersion means the store is at a version this set does not
	// know how to migrate from, i.e. newer than its latest step.
	CurrentVersion
	UpToDate
	NeedsMigration
	MigrationFailed
)

func (k StateKind) String() string {
	switch k {
	case NoSchema:
		return "no_schema"
	case CurrentVersion:
		return "current_version"
	case UpToDate:
		return "up_to_date"
	case NeedsMigration:
		return "needs_migration"
	case MigrationFailed:
		return "migration_failed"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// MarshalText renders the kind for JSON reports.
func (k StateKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// State is the detected or final schema state of a store.
type State struct {
	Kind StateKind `json:"kind"`

	// Current is the recorded version, 0 without a marker.
	Current int `json:"current"`

	// Target is the set's latest version.
	Target int `json:"target"`

	// Checksum is the checksum recorded with Current.
	Checksum string `json:"checksum,omitempty"`

	// Step and Cause describe a failed step.
	Step  int   `json:"step,omitempty"`
	Cause error `json:"-"`
}

func (s State) String() string {
	switch s.Kind {
	case NoSchema:
		return fmt.Sprintf("no schema (target %d)", s.Target)
	case CurrentVersion:
		return fmt.Sprintf("version %d (set latest is %d)", s.Current, s.Target)
	case UpToDate:
		return fmt.Sprintf("up to date at version %d", s.Current)
	case NeedsMigration:
		return fmt.Sprintf("needs migration %d -> %d", s.Current, s.Target)
	case MigrationFailed:
		return fmt.Sprintf("migration failed at step %d: %v", s.Step, s.Cause)
	default:
		return s.Kind.String()
	}
}

// Mismatch is a table whose live columns differ from the set's final
// schema.
type Mismatch struct {
	Table   string               `json:"table"`
	Missing bool                 `json:"missing,omitempty"`
	Diff    datastore.ColumnDiff `json:"-"`
	Changes []string             `json:"changes,omitempty"`
}

// Report summarizes a migration run.
type Report struct {
	Set     string `json:"set"`
	Backend string `json:"backend"`
	From    int    `json:"from"`
	To      int    `json:"to"`
	Applied []int  `json:"applied"`
	State   State  `json:"state"`

	// Mismatches and Warnings are filled when tables are validated.
	Mismatches []Mismatch `json:"mismatches,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}
