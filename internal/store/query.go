package store

import (
	"context"
	"fmt"

	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/queryir"
)

// Row is one result of a compiled Select, keyed by query path.
type Row map[string]any

// Int returns an integer column, or 0 when absent or not an integer.
func (r Row) Int(key string) int64 {
	v, _ := r[key].(int64)
	return v
}

// Text returns a text column, or "" when absent or not text.
func (r Row) Text(key string) string {
	v, _ := r[key].(string)
	return v
}

// IR converts the row to an IRObject for canonical encoding.
func (r Row) IR() (ir.IRObject, error) {
	obj := make(ir.IRObject, len(r))
	for k, v := range r {
		iv, err := ir.ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		obj[k] = iv
	}
	return obj, nil
}

// Select runs a compiled read and returns its rows in id order.
func (c *conn) Select(ctx context.Context, q queryir.Select) ([]Row, error) {
	query, params, err := c.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile select on %s: %w", q.From, err)
	}

	rows, err := c.ext.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("select on %s: %w", q.From, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.From, err)
		}
		out = append(out, Row(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.From, err)
	}
	return out, nil
}

// IDs runs a compiled read of the root ids matching filter.
func (c *conn) IDs(ctx context.Context, from string, filter queryir.Predicate) ([]int64, error) {
	rows, err := c.Select(ctx, queryir.Select{From: from, Filter: filter, Fields: []string{"id"}})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.Int("id")
	}
	return ids, nil
}

// Update runs a compiled bulk update and returns the number of rows changed.
func (c *conn) Update(ctx context.Context, q queryir.Update) (int64, error) {
	query, params, err := c.compiler.Compile(q)
	if err != nil {
		return 0, fmt.Errorf("compile update on %s: %w", q.From, err)
	}

	res, err := c.ext.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", q.From, err)
	}
	return res.RowsAffected()
}

// Balance returns the point balance of a person or organization.
func (c *conn) Balance(ctx context.Context, entity string, id int64) (int64, error) {
	e, err := c.compiler.Registry.Entity(entity)
	if err != nil {
		return 0, err
	}
	ref, err := e.Ref("yqpoint")
	if err != nil {
		return 0, err
	}
	balance, err := fieldref.PathOf(ref)
	if err != nil {
		return 0, err
	}

	rows, err := c.Select(ctx, queryir.Select{
		From:   entity,
		Filter: queryir.Equals{Field: "id", Value: ir.IRInt(id)},
		Fields: []string{balance},
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return rows[0].Int(balance), nil
}
