package migration

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
)

// VersionsTable records the applied version of each set.
var VersionsTable = datastore.TableDefinition{
	Name: "schema_versions",
	Columns: []datastore.ColumnDefinition{
		{Name: "name", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}, IsPrimary: true},
		{Name: "version", Type: datastore.ColumnType{Kind: datastore.Integer}},
		{Name: "checksum", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}},
		{Name: "updated_at", Type: datastore.ColumnType{Kind: datastore.DateTime}},
	},
}

// LocksTable holds one row per running migration.
var LocksTable = datastore.TableDefinition{
	Name: "schema_locks",
	Columns: []datastore.ColumnDefinition{
		{Name: "name", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}, IsPrimary: true},
		{Name: "owner", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}},
		{Name: "expires_at", Type: datastore.ColumnType{Kind: datastore.DateTime}},
	},
}

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	Logger *slog.Logger
	Clock  datastore.Clock

	// LockTimeout bounds the wait for a lock held elsewhere.
	LockTimeout time.Duration

	// LockTTL is how long a lock stays valid; expired locks are reclaimed.
	LockTTL time.Duration

	// LockRetry is the first wait between attempts; it doubles up to
	// MaxLockRetry.
	LockRetry    time.Duration
	MaxLockRetry time.Duration

	// NewOwner names lock owners.
	NewOwner func() string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = datastore.SystemClock
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 30 * time.Second
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 5 * time.Minute
	}
	if o.LockRetry <= 0 {
		o.LockRetry = 50 * time.Millisecond
	}
	if o.MaxLockRetry < o.LockRetry {
		o.MaxLockRetry = max(time.Second, o.LockRetry)
	}
	if o.NewOwner == nil {
		o.NewOwner = uuid.NewString
	}
	return o
}

// Manager runs migration sets from a catalog. It implements
// datastore.Migrator and is safe for concurrent use.
type Manager struct {
	catalog *Catalog
	opts    Options
	log     *slog.Logger
}

var _ datastore.Migrator = (*Manager)(nil)

func NewManager(catalog *Catalog, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{catalog: catalog, opts: opts, log: opts.Logger.With("component", "migration")}
}

// Migrate runs set against ds; see Run.
func (m *Manager) Migrate(ctx context.Context, ds datastore.DataStore, set string, validateTables bool) error {
	_, err := m.Run(ctx, ds, set, validateTables)
	return err
}

func (m *Manager) set(name string) (Set, error) {
	s, ok := m.catalog.Get(name)
	if !ok {
		return Set{}, datastore.Errorf(datastore.KindMigrationFailed, "migrate", "", "unknown migration set %q", name)
	}
	return s, nil
}

func failed(table string, err error) error {
	if datastore.IsKind(err, datastore.KindMigrationFailed) {
		return err
	}
	return datastore.NewError(datastore.KindMigrationFailed, "migrate", table, err)
}

// Status detects the state of set in ds and the steps a run would apply.
// It changes nothing.
func (m *Manager) Status(ctx context.Context, ds datastore.DataStore, name string) (State, []Step, error) {
	set, err := m.set(name)
	if err != nil {
		return State{}, nil, err
	}
	sm, err := datastore.AsSchema(ds)
	if err != nil {
		return State{}, nil, err
	}
	exists, err := sm.TableExists(ctx, VersionsTable.Name)
	if err != nil {
		return State{}, nil, err
	}
	if !exists {
		return State{Kind: NoSchema, Target: set.Latest()}, set.Pending(0), nil
	}
	state, err := m.detect(ctx, ds, set)
	if err != nil {
		return State{}, nil, err
	}
	if state.Kind == CurrentVersion {
		return state, nil, nil
	}
	return state, set.Pending(state.Current), nil
}

// Run migrates ds to the latest version of set under the set's lock. With
// validateTables the live schema is compared to the final definitions and
// differences are reported, not corrected. Failures are KindMigrationFailed;
// the returned report then carries the failed state.
func (m *Manager) Run(ctx context.Context, ds datastore.DataStore, name string, validateTables bool) (*Report, error) {
	set, err := m.set(name)
	if err != nil {
		return nil, err
	}
	report := &Report{Set: set.Name, Backend: ds.Kind(), Applied: []int{}}
	log := m.log.With("set", set.Name, "backend", ds.Kind())

	sm, err := datastore.AsSchema(ds)
	if err != nil {
		return report, failed("", err)
	}
	for _, def := range []datastore.TableDefinition{VersionsTable, LocksTable} {
		if err := ensureTable(ctx, sm, def); err != nil {
			return report, failed(def.Name, err)
		}
	}

	release, err := m.lock(ctx, ds, set.Name)
	if err != nil {
		return report, failed(LocksTable.Name, err)
	}
	defer release()

	state, err := m.detect(ctx, ds, set)
	if err != nil {
		return report, failed(VersionsTable.Name, err)
	}
	report.From, report.To, report.State = state.Current, state.Current, state
	if state.Kind == CurrentVersion {
		return report, failed(VersionsTable.Name,
			fmt.Errorf("stored version %d of set %s is newer than its latest step %d", state.Current, set.Name, state.Target))
	}

	for _, step := range set.Pending(state.Current) {
		start := time.Now()
		if err := m.apply(ctx, ds, sm, set.Name, step); err != nil {
			report.State = State{Kind: MigrationFailed, Current: report.To, Target: set.Latest(), Step: step.Version, Cause: err}
			log.ErrorContext(ctx, "migration step failed", "version", step.Version, "error", err)
			return report, failed("", fmt.Errorf("set %s step %d: %w", set.Name, step.Version, err))
		}
		log.InfoContext(ctx, "migration step applied", "version", step.Version, "duration", time.Since(start))
		report.Applied = append(report.Applied, step.Version)
		report.To = step.Version
	}
	report.State = State{Kind: UpToDate, Current: report.To, Target: set.Latest()}
	if sum, ok := stepChecksum(set, report.To); ok {
		report.State.Checksum = sum
	}

	if validateTables {
		report.Mismatches = m.validate(ctx, sm, set)
		report.Warnings = checksumDrift(set, state)
		for _, mm := range report.Mismatches {
			log.WarnContext(ctx, "table does not match definition", "table", mm.Table, "missing", mm.Missing, "changes", mm.Changes)
		}
		for _, w := range report.Warnings {
			log.WarnContext(ctx, w)
		}
	}
	return report, nil
}

func ensureTable(ctx context.Context, sm datastore.SchemaManager, def datastore.TableDefinition) error {
	exists, err := sm.TableExists(ctx, def.Name)
	if err != nil || exists {
		return err
	}
	return sm.CreateTable(ctx, def)
}

// detect reads the version marker of set.
func (m *Manager) detect(ctx context.Context, ds datastore.DataStore, set Set) (State, error) {
	rs, err := ds.Query(ctx, []string{"version", "checksum"}, VersionsTable.Name,
		queryir.New().Eq("name", set.Name), datastore.QueryOptions{Limit: datastore.Uint64(1)})
	if err != nil {
		return State{}, err
	}
	state := State{Kind: NoSchema, Target: set.Latest()}
	if rs.Len() == 0 {
		return state, nil
	}
	version, ok := rs.Rows[0][0].(ir.Int)
	if !ok {
		return State{}, fmt.Errorf("version marker of set %s is %s, not an integer", set.Name, rs.Rows[0][0].Kind())
	}
	state.Current = int(version)
	if sum, ok := rs.Rows[0][1].(ir.String); ok {
		state.Checksum = string(sum)
	}
	switch {
	case state.Current == state.Target:
		state.Kind = UpToDate
	case state.Current < state.Target:
		state.Kind = NeedsMigration
	default:
		state.Kind = CurrentVersion
	}
	return state, nil
}

// apply runs one step and records its version.
func (m *Manager) apply(ctx context.Context, ds datastore.DataStore, sm datastore.SchemaManager, set string, step Step) error {
	for _, def := range step.Tables {
		exists, err := sm.TableExists(ctx, def.Name)
		if err != nil {
			return err
		}
		if exists {
			err = sm.UpdateTable(ctx, def, step.RenameColumns[def.Name])
		} else {
			err = sm.CreateTable(ctx, def)
		}
		if err != nil {
			return err
		}
	}
	for _, table := range step.DropTables {
		if err := sm.DropTable(ctx, table); err != nil {
			return err
		}
	}
	for _, from := range slices.Sorted(maps.Keys(step.RenameTables)) {
		if err := sm.ForceRenameTable(ctx, from, step.RenameTables[from]); err != nil {
			return err
		}
	}
	if step.Data != nil {
		if err := step.Data(ctx, ds); err != nil {
			return fmt.Errorf("data hook: %w", err)
		}
	}

	sum, err := step.Checksum()
	if err != nil {
		return err
	}
	return ds.Replace(ctx, VersionsTable.Name, datastore.Row{
		"name":       set,
		"version":    step.Version,
		"checksum":   sum,
		"updated_at": m.opts.Clock.Now().UTC().Format(ir.TimeLayout),
	})
}

// validate compares the live columns of every table of the final schema.
func (m *Manager) validate(ctx context.Context, sm datastore.SchemaManager, set Set) []Mismatch {
	var out []Mismatch
	for _, def := range set.Schema() {
		exists, err := sm.TableExists(ctx, def.Name)
		if err == nil && !exists {
			out = append(out, Mismatch{Table: def.Name, Missing: true})
			continue
		}
		live, err := sm.Columns(ctx, def.Name)
		if err != nil {
			out = append(out, Mismatch{Table: def.Name, Changes: []string{err.Error()}})
			continue
		}
		if diff := datastore.DiffTable(live, def, sm); !diff.Empty() {
			out = append(out, Mismatch{Table: def.Name, Diff: diff, Changes: diff.Describe()})
		}
	}
	return out
}

func stepChecksum(set Set, version int) (string, bool) {
	step, ok := set.Step(version)
	if !ok {
		return "", false
	}
	sum, err := step.Checksum()
	return sum, err == nil
}

// checksumDrift warns when the step recorded before the run has changed
// since it was applied.
func checksumDrift(set Set, before State) []string {
	if before.Current == 0 || before.Checksum == "" {
		return nil
	}
	sum, ok := stepChecksum(set, before.Current)
	if !ok || sum == before.Checksum {
		return nil
	}
	return []string{fmt.Sprintf("step %d of set %s changed since it was applied (checksum %.12s, recorded %.12s)",
		before.Current, set.Name, sum, before.Checksum)}
}
