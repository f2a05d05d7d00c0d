package sqlstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
)

func (s *Store) Query(ctx context.Context, columns []string, table string, f *queryir.Filter, opts datastore.QueryOptions) (*ir.ResultSet, error) {
	const op = "query"
	if err := s.ready(op, table, f); err != nil {
		return nil, err
	}
	stmt, err := s.driver.Dialect.Select(table, columns, f, opts)
	if err != nil {
		return nil, datastore.NewError(datastore.KindQuery, op, table, err)
	}
	rs, err := s.query(ctx, op, table, stmt)
	if err != nil {
		return nil, datastore.NewError(datastore.KindQuery, op, table, err)
	}
	// Expressions come back under driver-chosen names; report what was asked.
	if !datastore.IsAll(columns) && len(rs.Columns) == len(columns) {
		rs.Columns = slices.Clone(columns)
	}
	return rs, nil
}

func (s *Store) Insert(ctx context.Context, table string, row datastore.Row) error {
	const op = "insert"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	stmt, err := s.driver.Dialect.Insert(table, row)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	if _, err := s.exec(ctx, op, table, stmt); err != nil {
		return s.insertError(op, table, -1, err)
	}
	return nil
}

func (s *Store) InsertMultiple(ctx context.Context, table string, rows []datastore.Row) error {
	const op = "insert_multiple"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	for i, row := range rows {
		stmt, err := s.driver.Dialect.Insert(table, row)
		if err != nil {
			return datastore.NewRowError(op, table, i, err)
		}
		if _, err := s.exec(ctx, op, table, stmt); err != nil {
			return s.insertError(op, table, i, err)
		}
	}
	return nil
}

func (s *Store) InsertOrUpdate(ctx context.Context, table string, row datastore.Row, conflictKey string, conflictValue any) error {
	const op = "insert_or_update"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	target, err := s.conflictTarget(ctx, op, table)
	if err != nil {
		return err
	}
	stmt, err := s.driver.Dialect.InsertOrUpdate(table, row, conflictKey, conflictValue, target)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	if _, err := s.exec(ctx, op, table, stmt); err != nil {
		return s.insertError(op, table, -1, err)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, table string, row datastore.Row) error {
	const op = "replace"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	target, err := s.conflictTarget(ctx, op, table)
	if err != nil {
		return err
	}
	stmt, err := s.driver.Dialect.Replace(table, row, target)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	if _, err := s.exec(ctx, op, table, stmt); err != nil {
		return s.insertError(op, table, -1, err)
	}
	return nil
}

// conflictTarget returns the table's primary key when the dialect needs an
// explicit upsert target, nil otherwise.
func (s *Store) conflictTarget(ctx context.Context, op, table string) ([]string, error) {
	if !s.driver.Dialect.NeedsConflictTarget() {
		return nil, nil
	}
	if pk, ok := s.keys[table]; ok {
		return pk, nil
	}
	cols, err := s.driver.Columns(ctx, s.conn, table)
	if err != nil {
		return nil, datastore.NewError(datastore.KindSchema, op, table, err)
	}
	var pk []string
	for _, c := range cols {
		if c.IsPrimary {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) == 0 {
		return nil, datastore.Errorf(datastore.KindInsert, op, table, "table has no primary key to resolve conflicts on")
	}
	s.keys[table] = pk
	return pk, nil
}

func (s *Store) Update(ctx context.Context, table string, set datastore.Row, increment map[string]int64, f *queryir.Filter, opts datastore.LimitOptions) (int64, error) {
	const op = "update"
	if err := s.ready(op, table, f); err != nil {
		return 0, err
	}
	stmt, err := s.driver.Dialect.Update(table, set, increment, f, opts)
	if err != nil {
		return 0, datastore.NewError(datastore.KindUpdate, op, table, err)
	}
	n, err := s.exec(ctx, op, table, stmt)
	if err != nil {
		return 0, datastore.NewError(datastore.KindUpdate, op, table, err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, table string, f *queryir.Filter) (int64, error) {
	const op = "delete"
	if err := s.ready(op, table, f); err != nil {
		return 0, err
	}
	stmt, err := s.driver.Dialect.Delete(table, f)
	if err != nil {
		return 0, datastore.NewError(datastore.KindDelete, op, table, err)
	}
	n, err := s.exec(ctx, op, table, stmt)
	if err != nil {
		return 0, datastore.NewError(datastore.KindDelete, op, table, err)
	}
	return n, nil
}

func (s *Store) DeleteByTime(ctx context.Context, table, timeColumn string) (int64, error) {
	const op = "delete_by_time"
	if err := s.ready(op, table, nil); err != nil {
		return 0, err
	}
	if timeColumn == "" {
		return 0, datastore.NewError(datastore.KindDelete, op, table, fmt.Errorf("time column is empty"))
	}
	n, err := s.exec(ctx, op, table, s.driver.Dialect.DeleteByTime(table, timeColumn))
	if err != nil {
		return 0, datastore.NewError(datastore.KindDelete, op, table, err)
	}
	return n, nil
}
