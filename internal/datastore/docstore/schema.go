package docstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/querydoc"
)

func pkIndexName(table string) string { return table + "_pk" }

// CreateTable records def in the catalog and creates the collection with a
// unique index on the primary key plus the defined indices.
func (s *Store) CreateTable(ctx context.Context, def datastore.TableDefinition) error {
	const op = "create_table"
	if err := s.gate.Check(op, def.Name); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return datastore.NewError(datastore.KindSchema, op, def.Name, err)
	}
	if err := s.applyDefinition(ctx, def); err != nil {
		return datastore.NewError(datastore.KindSchema, op, def.Name, err)
	}
	return nil
}

func (s *Store) applyDefinition(ctx context.Context, def datastore.TableDefinition) error {
	if err := s.eng.CreateCollection(ctx, def.Name); err != nil {
		return err
	}
	if pk := def.PrimaryKey(); len(pk) > 0 {
		if err := s.eng.EnsureIndex(ctx, def.Name, Index{Name: pkIndexName(def.Name), Keys: pk, Unique: true}); err != nil {
			return err
		}
	}
	for _, idx := range def.Indices {
		if err := s.eng.EnsureIndex(ctx, def.Name, Index{Name: idx.Name, Keys: idx.Columns, Unique: idx.Unique}); err != nil {
			return err
		}
	}
	return s.saveDefinition(ctx, def)
}

// UpdateTable renames fields, unsets removed columns and fills added
// columns with their defaults in every document, then records def. A
// changed primary key replaces the unique index.
func (s *Store) UpdateTable(ctx context.Context, def datastore.TableDefinition, renameColumns map[string]string) error {
	const op = "update_table"
	if err := s.gate.Check(op, def.Name); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return datastore.NewError(datastore.KindSchema, op, def.Name, err)
	}
	old, err := s.definition(ctx, def.Name)
	if err != nil {
		return datastore.NewError(datastore.KindSchema, op, def.Name, err)
	}
	if old == nil {
		return s.CreateTable(ctx, def)
	}

	live := slices.Clone(old.Columns)
	rename := bson.D{}
	for _, from := range slices.Sorted(maps.Keys(renameColumns)) {
		to := renameColumns[from]
		i := slices.IndexFunc(live, func(c datastore.ColumnDefinition) bool { return strings.EqualFold(c.Name, from) })
		if i < 0 {
			continue
		}
		rename = append(rename, bson.E{Key: live[i].Name, Value: to})
		live[i].Name = to
	}
	diff := datastore.DiffColumns(live, def.Columns)

	var unset bson.D
	for _, c := range diff.Removed {
		unset = append(unset, bson.E{Key: c.Name, Value: ""})
	}
	var updates []bson.D
	if len(rename) > 0 {
		updates = append(updates, bson.D{{Key: "$rename", Value: rename}})
	}
	if len(unset) > 0 {
		updates = append(updates, bson.D{{Key: "$unset", Value: unset}})
	}
	for _, u := range updates {
		if _, err := s.eng.UpdateMany(ctx, def.Name, bson.D{}, u); err != nil {
			return datastore.NewError(datastore.KindSchema, op, def.Name, err)
		}
	}

	now := s.now()
	for _, c := range diff.Added {
		if c.Default == nil {
			continue
		}
		v, err := defaultValue(c, now)
		if err != nil {
			return datastore.NewError(datastore.KindSchema, op, def.Name, fmt.Errorf("default of %s: %w", c.Name, err))
		}
		missing := bson.D{{Key: c.Name, Value: bson.D{{Key: querydoc.OpExists, Value: false}}}}
		if _, err := s.eng.UpdateMany(ctx, def.Name, missing, bson.D{{Key: "$set", Value: bson.D{{Key: c.Name, Value: v}}}}); err != nil {
			return datastore.NewError(datastore.KindSchema, op, def.Name, err)
		}
	}

	if !slices.Equal(old.PrimaryKey(), def.PrimaryKey()) {
		if err := s.eng.DropIndex(ctx, def.Name, pkIndexName(def.Name)); err != nil {
			return datastore.NewError(datastore.KindSchema, op, def.Name, err)
		}
	}
	if !diff.Empty() || len(rename) > 0 {
		s.log.InfoContext(ctx, "updating table", "table", def.Name, "changes", diff.Describe())
	}
	if err := s.applyDefinition(ctx, def); err != nil {
		return datastore.NewError(datastore.KindSchema, op, def.Name, err)
	}
	return nil
}

func (s *Store) DropTable(ctx context.Context, table string) error {
	const op = "drop_table"
	if err := s.gate.Check(op, table); err != nil {
		return err
	}
	if err := s.eng.DropCollection(ctx, table); err != nil {
		return datastore.NewError(datastore.KindSchema, op, table, err)
	}
	if err := s.dropDefinition(ctx, table); err != nil {
		return datastore.NewError(datastore.KindSchema, op, table, err)
	}
	return nil
}

// TableExists reports whether table has a definition or a collection.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	const op = "table_exists"
	if err := s.gate.Check(op, table); err != nil {
		return false, err
	}
	def, err := s.definition(ctx, table)
	if err != nil {
		return false, datastore.NewError(datastore.KindSchema, op, table, err)
	}
	if def != nil {
		return true, nil
	}
	ok, err := s.eng.CollectionExists(ctx, table)
	if err != nil {
		return false, datastore.NewError(datastore.KindSchema, op, table, err)
	}
	return ok, nil
}

// ForceRenameTable renames the collection, replacing newName, and moves the
// definition along.
func (s *Store) ForceRenameTable(ctx context.Context, oldName, newName string) error {
	const op = "rename_table"
	if err := s.gate.Check(op, oldName); err != nil {
		return err
	}
	def, err := s.definition(ctx, oldName)
	if err != nil {
		return datastore.NewError(datastore.KindSchema, op, oldName, err)
	}
	if err := s.eng.RenameCollection(ctx, oldName, newName); err != nil {
		return datastore.NewError(datastore.KindSchema, op, oldName, err)
	}
	if err := s.dropDefinition(ctx, newName); err != nil {
		return datastore.NewError(datastore.KindSchema, op, newName, err)
	}
	if def == nil {
		return nil
	}
	moved := *def
	moved.Name = newName
	if err := s.saveDefinition(ctx, moved); err != nil {
		return datastore.NewError(datastore.KindSchema, op, newName, err)
	}
	if err := s.dropDefinition(ctx, oldName); err != nil {
		return datastore.NewError(datastore.KindSchema, op, oldName, err)
	}
	return nil
}

// Columns returns the catalog definition's columns. Document collections
// have no live schema of their own.
func (s *Store) Columns(ctx context.Context, table string) ([]datastore.ColumnDefinition, error) {
	const op = "columns"
	if err := s.gate.Check(op, table); err != nil {
		return nil, err
	}
	def, err := s.definition(ctx, table)
	if err != nil {
		return nil, datastore.NewError(datastore.KindSchema, op, table, err)
	}
	if def == nil {
		return nil, datastore.Errorf(datastore.KindSchema, op, table, "table has no definition")
	}
	return slices.Clone(def.Columns), nil
}
