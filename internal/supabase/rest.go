package supabase

import (
	"context"
	"log/slog"

	postgrest "github.com/supabase-community/postgrest-go"
)

// Insert adds record to table and decodes the inserted rows into out.
// PostgREST returns an array even for a single row.
func (c *Client) Insert(ctx context.Context, table string, record interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.From(table).Insert(record, false, "", "representation", "").ExecuteTo(out); err != nil {
		err = toAPIError(err)
		slog.Error("Supabase.Insert failed", "table", table, "error", err)
		return err
	}
	slog.Debug("Supabase.Insert succeeded", "table", table)
	return nil
}

// SelectEq decodes the rows of table where column equals value into out.
func (c *Client) SelectEq(ctx context.Context, table, column, value string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.From(table).Select("*", "", false).Eq(column, value).ExecuteTo(out); err != nil {
		err = toAPIError(err)
		slog.Error("Supabase.SelectEq failed", "table", table, "column", column, "error", err)
		return err
	}
	return nil
}

// SelectLatest decodes up to limit rows of table, newest orderColumn first, into out.
func (c *Client) SelectLatest(ctx context.Context, table, orderColumn string, limit int, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := c.api.From(table).Select("*", "", false).
		Order(orderColumn, &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "")
	if _, err := q.ExecuteTo(out); err != nil {
		err = toAPIError(err)
		slog.Error("Supabase.SelectLatest failed", "table", table, "error", err)
		return err
	}
	return nil
}
