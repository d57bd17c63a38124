package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Spec declares a repository table and its queryable columns. The id
// column is always present; Indexed lists the extra materialized columns.
type Spec struct {
	Table   string
	Indexed []string
}

// Index extracts the primary key and the materialized column values from
// a record. The returned map must cover exactly the Spec's Indexed set.
type Index[T any] func(v *T) (id string, cols map[string]any)

// Repo stores records of one type as JSON documents plus index columns.
type Repo[T any] struct {
	db    *DB
	spec  Spec
	index Index[T]
	cols  map[string]bool
}

func NewRepo[T any](db *DB, spec Spec, index Index[T]) *Repo[T] {
	cols := make(map[string]bool, len(spec.Indexed))
	for _, c := range spec.Indexed {
		cols[c] = true
	}
	return &Repo[T]{db: db, spec: spec, index: index, cols: cols}
}

// Query filters on index columns. Keys outside the table spec make the
// operation fail with ErrNotIndexed.
type Query map[string]any

type findOpts struct {
	orderBy string
	desc    bool
	limit   int
}

type FindOption func(*findOpts)

func OrderAsc(col string) FindOption  { return func(o *findOpts) { o.orderBy, o.desc = col, false } }
func OrderDesc(col string) FindOption { return func(o *findOpts) { o.orderBy, o.desc = col, true } }
func Limit(n int) FindOption          { return func(o *findOpts) { o.limit = n } }

func (r *Repo[T]) validate(q Query, o findOpts) error {
	for k := range q {
		if k != "id" && !r.cols[k] {
			return fmt.Errorf("%w: %s.%s", ErrNotIndexed, r.spec.Table, k)
		}
	}
	if o.orderBy != "" && o.orderBy != "id" && !r.cols[o.orderBy] {
		return fmt.Errorf("%w: %s.%s (order by)", ErrNotIndexed, r.spec.Table, o.orderBy)
	}
	return nil
}

func (r *Repo[T]) whereClause(q Query) (string, []any) {
	if len(q) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" = ?")
		args = append(args, q[k])
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// Upsert inserts or replaces a record by id.
func (r *Repo[T]) Upsert(ctx context.Context, v *T) error {
	id, cols := r.index(v)
	if id == "" {
		return errors.New("storage: record has empty id")
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cols))
	for k := range cols {
		if !r.cols[k] {
			return fmt.Errorf("%w: %s.%s (index func)", ErrNotIndexed, r.spec.Table, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)

	colSQL := "id"
	valSQL := "?"
	updSQL := ""
	args := []any{id}
	for _, k := range names {
		colSQL += ", " + k
		valSQL += ", ?"
		updSQL += k + "=excluded." + k + ", "
		args = append(args, cols[k])
	}
	colSQL += ", doc"
	valSQL += ", ?"
	updSQL += "doc=excluded.doc"
	args = append(args, string(doc))

	_, err = r.db.sql.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s(%s) VALUES(%s) ON CONFLICT(id) DO UPDATE SET %s",
		r.spec.Table, colSQL, valSQL, updSQL), args...)
	return err
}

// Get loads a record by id. Missing records return ErrNotFound.
func (r *Repo[T]) Get(ctx context.Context, id string) (*T, error) {
	var doc string
	err := r.db.sql.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", r.spec.Table), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.decode(doc)
}

// Find returns all records matching q, in the requested order.
func (r *Repo[T]) Find(ctx context.Context, q Query, opts ...FindOption) ([]*T, error) {
	var o findOpts
	for _, fn := range opts {
		fn(&o)
	}
	if err := r.validate(q, o); err != nil {
		return nil, err
	}

	where, args := r.whereClause(q)
	stmt := fmt.Sprintf("SELECT doc FROM %s%s", r.spec.Table, where)
	if o.orderBy != "" {
		stmt += " ORDER BY " + o.orderBy
		if o.desc {
			stmt += " DESC"
		}
	}
	if o.limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", o.limit)
	}

	rows, err := r.db.sql.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		v, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// FindOne returns the first match or ErrNotFound.
func (r *Repo[T]) FindOne(ctx context.Context, q Query, opts ...FindOption) (*T, error) {
	vs, err := r.Find(ctx, q, append(opts, Limit(1))...)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, ErrNotFound
	}
	return vs[0], nil
}

// Delete removes a record by id. Deleting a missing record is not an error.
func (r *Repo[T]) Delete(ctx context.Context, id string) error {
	_, err := r.db.sql.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.spec.Table), id)
	return err
}

// DeleteWhere removes all records matching q and reports how many went.
func (r *Repo[T]) DeleteWhere(ctx context.Context, q Query) (int64, error) {
	if err := r.validate(q, findOpts{}); err != nil {
		return 0, err
	}
	where, args := r.whereClause(q)
	res, err := r.db.sql.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s%s", r.spec.Table, where), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count reports how many records match q.
func (r *Repo[T]) Count(ctx context.Context, q Query) (int64, error) {
	if err := r.validate(q, findOpts{}); err != nil {
		return 0, err
	}
	where, args := r.whereClause(q)
	var n int64
	err := r.db.sql.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s%s", r.spec.Table, where), args...).Scan(&n)
	return n, err
}

func (r *Repo[T]) decode(doc string) (*T, error) {
	v := new(T)
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", r.spec.Table, err)
	}
	return v, nil
}
