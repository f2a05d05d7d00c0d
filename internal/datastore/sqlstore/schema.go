package sqlstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/querysql"
)

func (s *Store) CreateTable(ctx context.Context, def datastore.TableDefinition) error {
	const op = "create_table"
	if err := s.gate.Check(op, def.Name); err != nil {
		return err
	}
	stmts, err := s.driver.Dialect.CreateTable(def)
	if err != nil {
		return datastore.NewError(datastore.KindSchema, op, def.Name, err)
	}
	delete(s.keys, def.Name)
	return s.execAll(ctx, op, def.Name, stmts)
}

// UpdateTable renames columns, then adds and drops columns in place. Any
// change to a column's type, key or default, and any added or removed key
// column, rebuilds the table keeping the data of every surviving column.
func (s *Store) UpdateTable(ctx context.Context, def datastore.TableDefinition, renameColumns map[string]string) error {
	const op = "update_table"
	if err := s.gate.Check(op, def.Name); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return datastore.NewError(datastore.KindSchema, op, def.Name, err)
	}
	exists, err := s.TableExists(ctx, def.Name)
	if err != nil {
		return err
	}
	if !exists {
		return s.CreateTable(ctx, def)
	}
	live, err := s.Columns(ctx, def.Name)
	if err != nil {
		return err
	}

	d := s.driver.Dialect
	var stmts []string
	for _, from := range slices.Sorted(maps.Keys(renameColumns)) {
		to := renameColumns[from]
		i := columnIndex(live, from)
		if i < 0 || columnIndex(live, to) >= 0 {
			continue
		}
		stmts = append(stmts, d.RenameColumn(def.Name, live[i].Name, to))
		live[i].Name = to
	}

	diff := datastore.DiffTable(live, def, s)
	rebuild := len(diff.Changed) > 0
	for _, c := range slices.Concat(diff.Added, diff.Removed) {
		if c.IsPrimary || c.AutoIncrement {
			rebuild = true
		}
	}

	if rebuild {
		var keep []string
		for _, c := range def.Columns {
			if columnIndex(live, c.Name) >= 0 {
				keep = append(keep, c.Name)
			}
		}
		rb, err := d.RebuildTable(def, keep)
		if err != nil {
			return datastore.NewError(datastore.KindSchema, op, def.Name, err)
		}
		stmts = append(stmts, rb...)
	} else {
		for _, c := range diff.Added {
			add, err := d.AddColumn(def.Name, c)
			if err != nil {
				return datastore.NewError(datastore.KindSchema, op, def.Name, err)
			}
			stmts = append(stmts, add)
		}
		for _, c := range diff.Removed {
			stmts = append(stmts, d.DropColumn(def.Name, c.Name))
		}
		for _, idx := range def.Indices {
			stmts = append(stmts, d.CreateIndex(def.Name, idx))
		}
	}

	if !diff.Empty() || len(renameColumns) > 0 {
		s.log.InfoContext(ctx, "updating table", "table", def.Name, "rebuild", rebuild, "changes", diff.Describe())
	}
	delete(s.keys, def.Name)
	return s.execAll(ctx, op, def.Name, stmts)
}

func columnIndex(cols []datastore.ColumnDefinition, name string) int {
	return slices.IndexFunc(cols, func(c datastore.ColumnDefinition) bool {
		return strings.EqualFold(c.Name, name)
	})
}

func (s *Store) DropTable(ctx context.Context, table string) error {
	const op = "drop_table"
	if err := s.gate.Check(op, table); err != nil {
		return err
	}
	delete(s.keys, table)
	return s.execAll(ctx, op, table, []string{s.driver.Dialect.DropTable(table)})
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	const op = "table_exists"
	if err := s.gate.Check(op, table); err != nil {
		return false, err
	}
	rs, err := s.query(ctx, op, table, s.driver.Dialect.TableExists(table))
	if err != nil {
		return false, datastore.NewError(datastore.KindSchema, op, table, err)
	}
	return rs.Len() > 0, nil
}

// ForceRenameTable renames oldName to newName, dropping any existing
// newName first.
func (s *Store) ForceRenameTable(ctx context.Context, oldName, newName string) error {
	const op = "rename_table"
	if err := s.gate.Check(op, oldName); err != nil {
		return err
	}
	d := s.driver.Dialect
	delete(s.keys, oldName)
	delete(s.keys, newName)
	return s.execAll(ctx, op, oldName, []string{d.DropTable(newName), d.RenameTable(oldName, newName)})
}

func (s *Store) Columns(ctx context.Context, table string) ([]datastore.ColumnDefinition, error) {
	const op = "columns"
	if err := s.gate.Check(op, table); err != nil {
		return nil, err
	}
	cols, err := s.driver.Columns(ctx, s.conn, table)
	if err != nil {
		return nil, datastore.NewError(datastore.KindSchema, op, table, err)
	}
	if len(cols) == 0 {
		return nil, datastore.Errorf(datastore.KindSchema, op, table, "table does not exist")
	}
	return cols, nil
}

// NormalizeColumn maps a definition onto what Columns reports for it.
func (s *Store) NormalizeColumn(c datastore.ColumnDefinition) datastore.ColumnDefinition {
	return s.driver.Dialect.NormalizeColumn(c)
}

func (s *Store) execAll(ctx context.Context, op, table string, stmts []string) error {
	for _, sql := range stmts {
		if _, err := s.exec(ctx, op, table, querysql.Statement{SQL: sql}); err != nil {
			return datastore.NewError(datastore.KindSchema, op, table, fmt.Errorf("%s: %w", sql, err))
		}
	}
	return nil
}

// ExecRaw runs a statement written in the backend's own SQL and
// placeholder syntax.
func (s *Store) ExecRaw(ctx context.Context, statement string, args ...any) (int64, error) {
	const op = "exec_raw"
	if err := s.gate.Check(op, ""); err != nil {
		return 0, err
	}
	n, err := s.exec(ctx, op, "", querysql.Statement{SQL: statement, Args: args})
	if err != nil {
		return 0, datastore.NewError(datastore.KindQuery, op, "", err)
	}
	return n, nil
}

// QueryRaw runs a query written in the backend's own SQL and placeholder
// syntax.
func (s *Store) QueryRaw(ctx context.Context, statement string, args ...any) (*ir.ResultSet, error) {
	const op = "query_raw"
	if err := s.gate.Check(op, ""); err != nil {
		return nil, err
	}
	rs, err := s.query(ctx, op, "", querysql.Statement{SQL: statement, Args: args})
	if err != nil {
		return nil, datastore.NewError(datastore.KindQuery, op, "", err)
	}
	return rs, nil
}
