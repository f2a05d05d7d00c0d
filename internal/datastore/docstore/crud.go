package docstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/querydoc"
	"github.com/roach88/datamgr/internal/queryir"
)

func (s *Store) Query(ctx context.Context, columns []string, table string, f *queryir.Filter, opts datastore.QueryOptions) (*ir.ResultSet, error) {
	const op = "query"
	if err := s.ready(op, table, f); err != nil {
		return nil, err
	}
	def, err := s.definition(ctx, table)
	if err != nil {
		return nil, datastore.NewError(datastore.KindQuery, op, table, err)
	}

	// Engines read a zero limit as no limit; SQL returns no rows.
	if opts.Limit != nil && *opts.Limit == 0 {
		if datastore.IsAll(columns) {
			columns = allColumns(def, nil)
		}
		return ir.NewResultSet(slices.Clone(columns)), nil
	}

	query := querydoc.LowerFields(f, fieldTypes{def})
	fo := FindOptions{Skip: toInt64(opts.Offset), Limit: toInt64(opts.Limit)}
	for _, sf := range opts.Sort {
		dir := 1
		if sf.Descending {
			dir = -1
		}
		fo.Sort = append(fo.Sort, bson.E{Key: sf.Field, Value: dir})
	}
	if !datastore.IsAll(columns) {
		fo.Projection = columns
	}

	start := time.Now()
	docs, err := s.eng.Find(ctx, table, query, fo)
	s.logOp(ctx, op, table, query, int64(len(docs)), start, err)
	if err != nil {
		return nil, datastore.NewError(datastore.KindQuery, op, table, err)
	}

	if datastore.IsAll(columns) {
		columns = allColumns(def, docs)
	}
	rs := ir.NewResultSet(slices.Clone(columns))
	for _, d := range docs {
		m := toMap(d)
		row := make(ir.Row, len(columns))
		for i, c := range columns {
			row[i] = decodeValue(m[c])
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

// allColumns lists the defined columns, or for tables without a definition
// every field seen in docs in first-seen order.
func allColumns(def *datastore.TableDefinition, docs []bson.D) []string {
	var cols []string
	if def != nil {
		for _, c := range def.Columns {
			cols = append(cols, c.Name)
		}
		return cols
	}
	seen := map[string]bool{IDField: true}
	for _, d := range docs {
		for _, e := range d {
			if !seen[e.Key] {
				seen[e.Key] = true
				cols = append(cols, e.Key)
			}
		}
	}
	return cols
}

func toInt64(n *uint64) *int64 {
	if n == nil {
		return nil
	}
	v := int64(*n)
	return &v
}

func (s *Store) Insert(ctx context.Context, table string, row datastore.Row) error {
	const op = "insert"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	return s.insert(ctx, op, table, row, -1)
}

func (s *Store) InsertMultiple(ctx context.Context, table string, rows []datastore.Row) error {
	const op = "insert_multiple"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	for i, row := range rows {
		if err := s.insert(ctx, op, table, row, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, op, table string, row datastore.Row, index int) error {
	if len(row) == 0 {
		return &datastore.Error{Kind: datastore.KindInsert, Op: op, Table: table, Row: index, Err: fmt.Errorf("row has no columns")}
	}
	def, err := s.definition(ctx, table)
	if err != nil {
		return &datastore.Error{Kind: datastore.KindInsert, Op: op, Table: table, Row: index, Err: err}
	}
	if row, err = s.assignID(ctx, table, def, row); err != nil {
		return &datastore.Error{Kind: datastore.KindInsert, Op: op, Table: table, Row: index, Err: err}
	}
	doc, err := encodeRow(def, row, s.now(), true)
	if err != nil {
		return &datastore.Error{Kind: datastore.KindInsert, Op: op, Table: table, Row: index, Err: err}
	}
	start := time.Now()
	err = s.eng.InsertOne(ctx, table, doc)
	s.logOp(ctx, op, table, nil, 1, start, err)
	if err != nil {
		return s.insertError(op, table, index, err)
	}
	return nil
}

// assignID fills a missing auto-increment column with one past the
// largest stored value.
func (s *Store) assignID(ctx context.Context, table string, def *datastore.TableDefinition, row datastore.Row) (datastore.Row, error) {
	if def == nil {
		return row, nil
	}
	for _, c := range def.Columns {
		if !c.AutoIncrement || hasField(row, c.Name) {
			continue
		}
		one := int64(1)
		docs, err := s.eng.Find(ctx, table, bson.D{}, FindOptions{
			Sort:       bson.D{{Key: c.Name, Value: -1}},
			Limit:      &one,
			Projection: []string{c.Name},
		})
		if err != nil {
			return nil, err
		}
		next := int64(1)
		if len(docs) > 0 {
			if last, ok := decodeValue(toMap(docs[0])[c.Name]).(ir.Int); ok {
				next = int64(last) + 1
			}
		}
		row = maps.Clone(row)
		row[c.Name] = next
	}
	return row, nil
}

// primaryKey returns the defined primary key of table, or nil.
func primaryKey(def *datastore.TableDefinition) []string {
	if def == nil {
		return nil
	}
	return def.PrimaryKey()
}

// InsertOrUpdate looks the row up by primary key, or by every supplied
// column other than conflictKey for tables without one, then sets
// conflictKey on the match or inserts row. An insert that loses a race
// against a concurrent writer falls back to the update.
func (s *Store) InsertOrUpdate(ctx context.Context, table string, row datastore.Row, conflictKey string, conflictValue any) error {
	const op = "insert_or_update"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	if conflictKey == "" {
		return datastore.Errorf(datastore.KindInsert, op, table, "conflict key is empty")
	}
	def, err := s.definition(ctx, table)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	doc, err := encodeRow(def, row, s.now(), false)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	keys := primaryKey(def)
	if len(keys) == 0 {
		for _, e := range doc {
			if !strings.EqualFold(e.Key, conflictKey) {
				keys = append(keys, e.Key)
			}
		}
	}
	if len(keys) == 0 {
		return datastore.Errorf(datastore.KindInsert, op, table, "no columns to resolve conflicts on")
	}
	value, err := encodeValue(column(def, conflictKey), conflictValue)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	query := keyQuery(doc, keys)
	update := bson.D{{Key: "$set", Value: bson.D{{Key: conflictKey, Value: value}}}}

	one := int64(1)
	start := time.Now()
	found, err := s.eng.Find(ctx, table, query, FindOptions{Limit: &one, Projection: []string{IDField}})
	s.logOp(ctx, op, table, query, int64(len(found)), start, err)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	if len(found) == 0 {
		err := s.insert(ctx, op, table, row, -1)
		if err == nil || !isDuplicateErr(err) {
			return err
		}
	}
	if _, err := s.eng.UpdateMany(ctx, table, query, update); err != nil {
		return s.insertError(op, table, -1, err)
	}
	return nil
}

func isDuplicateErr(err error) bool {
	return datastore.IsKind(err, datastore.KindInsert) && errors.Is(err, datastore.ErrDuplicateKey)
}

// Replace overwrites the document with the row's primary key, or with all
// of the row's columns for tables without one.
func (s *Store) Replace(ctx context.Context, table string, row datastore.Row) error {
	const op = "replace"
	if err := s.ready(op, table, nil); err != nil {
		return err
	}
	if len(row) == 0 {
		return datastore.Errorf(datastore.KindInsert, op, table, "row has no columns")
	}
	def, err := s.definition(ctx, table)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	if row, err = s.assignID(ctx, table, def, row); err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	doc, err := encodeRow(def, row, s.now(), true)
	if err != nil {
		return datastore.NewError(datastore.KindInsert, op, table, err)
	}
	keys := primaryKey(def)
	if len(keys) == 0 {
		keys = slices.Sorted(maps.Keys(row))
	}
	query := keyQuery(doc, keys)

	start := time.Now()
	err = s.eng.ReplaceOne(ctx, table, query, doc)
	s.logOp(ctx, op, table, query, 1, start, err)
	if err != nil {
		return s.insertError(op, table, -1, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, set datastore.Row, increment map[string]int64, f *queryir.Filter, opts datastore.LimitOptions) (int64, error) {
	const op = "update"
	if err := s.ready(op, table, f); err != nil {
		return 0, err
	}
	if len(set) == 0 && len(increment) == 0 {
		return 0, datastore.Errorf(datastore.KindUpdate, op, table, "nothing to set")
	}
	def, err := s.definition(ctx, table)
	if err != nil {
		return 0, datastore.NewError(datastore.KindUpdate, op, table, err)
	}

	var update bson.D
	if len(set) > 0 {
		doc, err := encodeRow(def, set, s.now(), false)
		if err != nil {
			return 0, datastore.NewError(datastore.KindUpdate, op, table, err)
		}
		update = append(update, bson.E{Key: "$set", Value: doc})
	}
	if len(increment) > 0 {
		var inc bson.D
		for _, k := range slices.Sorted(maps.Keys(increment)) {
			if hasField(set, k) {
				return 0, datastore.Errorf(datastore.KindUpdate, op, table, "column %s is both set and incremented", k)
			}
			inc = append(inc, bson.E{Key: k, Value: increment[k]})
		}
		update = append(update, bson.E{Key: "$inc", Value: inc})
	}

	if opts.Limit != nil && *opts.Limit == 0 {
		return 0, nil
	}
	query := querydoc.LowerFields(f, fieldTypes{def})
	if opts.Limited() {
		// Pick the documents first, then update them by _id.
		docs, err := s.eng.Find(ctx, table, query, FindOptions{
			Skip:       toInt64(opts.Offset),
			Limit:      toInt64(opts.Limit),
			Projection: []string{IDField},
		})
		if err != nil {
			return 0, datastore.NewError(datastore.KindUpdate, op, table, err)
		}
		ids := make(bson.A, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, toMap(d)[IDField])
		}
		query = bson.D{{Key: IDField, Value: bson.D{{Key: querydoc.OpIn, Value: ids}}}}
	}

	start := time.Now()
	n, err := s.eng.UpdateMany(ctx, table, query, update)
	s.logOp(ctx, op, table, query, n, start, err)
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
	def, err := s.definition(ctx, table)
	if err != nil {
		return 0, datastore.NewError(datastore.KindDelete, op, table, err)
	}
	query := querydoc.LowerFields(f, fieldTypes{def})
	start := time.Now()
	n, err := s.eng.DeleteMany(ctx, table, query)
	s.logOp(ctx, op, table, query, n, start, err)
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
	start := time.Now()
	n, err := s.eng.DeleteExpired(ctx, table, timeColumn)
	s.logOp(ctx, op, table, nil, n, start, err)
	if err != nil {
		return 0, datastore.NewError(datastore.KindDelete, op, table, err)
	}
	return n, nil
}
