package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datamgr/internal/datastore"
)

func TestReadYAML(t *testing.T) {
	sets, err := LoadYAMLFile(filepath.Join("testdata", "inventory.yaml"))
	require.NoError(t, err)
	require.Len(t, sets, 2)

	inv := sets[0]
	assert.Equal(t, "Inventory", inv.Name)
	require.NoError(t, inv.Validate())
	assert.Equal(t, 2, inv.Latest())
	assert.Equal(t, map[string]map[string]string{"items": {"owner": "ownerID"}}, inv.Steps[1].RenameColumns)

	id := inv.Steps[0].Tables[0].Columns[0]
	assert.True(t, id.IsPrimary)
	assert.True(t, id.AutoIncrement)
	assert.Equal(t, datastore.ColumnType{Kind: datastore.Char, Size: 36}, inv.Steps[0].Tables[0].Columns[1].Type)

	assets := sets[1]
	created, ok := assets.Schema()[0].Column("created")
	require.True(t, ok)
	assert.Equal(t, "CURRENT_TIMESTAMP", *created.Default)
}

func TestReadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown_field", "name: X\nstepz: []\n", "field stepz not found"},
		{"bad_type", "name: X\nsteps:\n  - version: 1\n    tables:\n      - name: t\n        columns:\n          - {name: a, type: varchar(9)}\n", "line 7"},
		{"bad_size", "name: X\nsteps:\n  - version: 1\n    tables:\n      - name: t\n        columns:\n          - {name: a, type: string(x)}\n", "malformed size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadYAML(strings.NewReader(tt.src))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadYAMLFile_Missing(t *testing.T) {
	_, err := LoadYAMLFile(filepath.Join(t.TempDir(), "absent.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Error(), "absent.yaml: ")
}

func TestLoadCUE(t *testing.T) {
	sets, err := LoadCUE(filepath.Join("testdata", "cue"))
	require.NoError(t, err)
	require.Len(t, sets, 1)

	regions := sets[0]
	assert.Equal(t, "Regions", regions.Name)
	require.NoError(t, regions.Validate())
	assert.Equal(t, []string{"region_cache"}, regions.Steps[1].DropTables)

	schema := regions.Schema()
	require.Len(t, schema, 1)
	assert.Equal(t, []string{"RegionID"}, schema[0].PrimaryKey())
	flags, ok := schema[0].Column("flags")
	require.True(t, ok)
	assert.Equal(t, datastore.ColumnType{Kind: datastore.Integer}, flags.Type)
}

func TestCompileCUE_ErrorPosition(t *testing.T) {
	src := `migrations: Broken: steps: [{
	version: 1
	tables: [{name: "t", columns: [{name: "a", type: int}]}]
}]
`
	_, err := CompileCUE("broken.cue", src)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.True(t, le.Pos.IsValid())
	assert.Equal(t, "broken.cue", le.Pos.Filename())
	assert.Equal(t, 3, le.Pos.Line())
	assert.True(t, strings.HasPrefix(le.Error(), "broken.cue:3:"))
}

func TestCompileCUE_Errors(t *testing.T) {
	_, err := CompileCUE("empty.cue", `other: 1`)
	assert.ErrorContains(t, err, "no migrations struct")

	_, err = CompileCUE("syntax.cue", `migrations: {`)
	var le *LoadError
	assert.ErrorAs(t, err, &le)

	_, err = CompileCUE("type.cue", `migrations: X: steps: [{version: 1, tables: [{name: "t", columns: [{name: "a", type: "nope"}]}]}]`)
	assert.ErrorContains(t, err, "migrations.X")
}

func TestCompileCUE_ExplicitName(t *testing.T) {
	sets, err := CompileCUE("named.cue", `migrations: x: {name: "Explicit", steps: [{version: 1}]}`)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "Explicit", sets[0].Name)
}

func TestCatalog_LoadDir(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, filepath.Join("testdata", "inventory.yaml"), filepath.Join(dir, "inventory.yml"))
	copyFile(t, filepath.Join("testdata", "cue", "regions.cue"), filepath.Join(dir, "regions.cue"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	c, err := NewCatalog(Auth())
	require.NoError(t, err)
	require.NoError(t, c.LoadDir(dir))

	assert.Equal(t, []string{"Assets", "Auth", "Inventory", "Regions"}, c.Names())
}

func TestCatalog_LoadDirErrors(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)

	assert.ErrorContains(t, c.LoadDir(t.TempDir()), "no migration sets found")
	assert.Error(t, c.LoadDir(filepath.Join(t.TempDir(), "missing")))

	dir := t.TempDir()
	copyFile(t, filepath.Join("testdata", "inventory.yaml"), filepath.Join(dir, "a.yaml"))
	copyFile(t, filepath.Join("testdata", "inventory.yaml"), filepath.Join(dir, "b.yaml"))
	assert.ErrorContains(t, c.LoadDir(dir), "already registered")
}

func TestCatalog_Register(t *testing.T) {
	c, err := NewCatalog(Auth())
	require.NoError(t, err)

	assert.ErrorContains(t, c.Register(Auth()), "already registered")
	assert.Error(t, c.Register(Set{Name: "Empty"}))

	_, err = NewCatalog(Set{})
	assert.Error(t, err)

	s, ok := c.Get(AuthSetName)
	assert.True(t, ok)
	assert.Equal(t, 2, s.Latest())
	_, ok = c.Get("nope")
	assert.False(t, ok)
}

func TestCatalog_SetHook(t *testing.T) {
	c, err := NewCatalog(Auth())
	require.NoError(t, err)
	before, _ := c.Get(AuthSetName)

	hook := func(context.Context, datastore.DataStore) error { return errors.New("x") }
	require.NoError(t, c.SetHook(AuthSetName, 2, hook))
	assert.Error(t, c.SetHook(AuthSetName, 3, hook))
	assert.Error(t, c.SetHook("nope", 1, hook))

	after, _ := c.Get(AuthSetName)
	assert.NotNil(t, after.Steps[1].Data)
	assert.Nil(t, before.Steps[1].Data, "sets handed out earlier are not changed")
}

func copyFile(t *testing.T, from, to string) {
	t.Helper()
	data, err := os.ReadFile(from)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(to, data, 0o644))
}
