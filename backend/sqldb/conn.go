package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/entmap/entmap/logger"
)

// conn runs statements on the pool or a transaction, statements outside transactions go through the cache when enabled
type conn struct {
	b  *Backend
	tx *sql.Tx
}

func (b *Backend) conn() *conn {
	return &conn{b: b}
}

func (c *conn) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	c.b.stmtMu.Lock()
	if stmt, ok := c.b.stmts.Get(query); ok {
		c.b.stmtMu.Unlock()
		if err := stmt.Error(); err != nil {
			return nil, err
		}
		return stmt.Stmt, nil
	}

	// New releases the lock once the statement placeholder is cached
	stmt, err := c.b.stmts.New(ctx, query, c.b.DB, &c.b.stmtMu)
	if err != nil {
		return nil, err
	}
	return stmt.Stmt, nil
}

func (c *conn) forget(query string, err error) {
	if errors.Is(err, driver.ErrBadConn) {
		c.b.stmtMu.Lock()
		c.b.stmts.Delete(query)
		c.b.stmtMu.Unlock()
	}
}

func (c *conn) exec(ctx context.Context, stmt *Statement) (result sql.Result, err error) {
	query := stmt.String()
	defer c.trace(ctx, stmt, func() int64 {
		if result == nil {
			return -1
		}
		n, rerr := result.RowsAffected()
		if rerr != nil {
			return -1
		}
		return n
	})(&err)

	switch {
	case c.tx != nil:
		result, err = c.tx.ExecContext(ctx, query, stmt.Vars...)
	case c.b.PrepareStmt:
		var s *sql.Stmt
		if s, err = c.prepare(ctx, query); err != nil {
			return nil, err
		}
		result, err = s.ExecContext(ctx, stmt.Vars...)
		c.forget(query, err)
	default:
		result, err = c.b.DB.ExecContext(ctx, query, stmt.Vars...)
	}
	if err != nil {
		err = c.b.Dialect.Translate(err)
	}
	return result, err
}

func (c *conn) query(ctx context.Context, stmt *Statement) (rows *sql.Rows, err error) {
	query := stmt.String()
	defer c.trace(ctx, stmt, func() int64 { return -1 })(&err)

	switch {
	case c.tx != nil:
		rows, err = c.tx.QueryContext(ctx, query, stmt.Vars...)
	case c.b.PrepareStmt:
		var s *sql.Stmt
		if s, err = c.prepare(ctx, query); err != nil {
			return nil, err
		}
		rows, err = s.QueryContext(ctx, stmt.Vars...)
		c.forget(query, err)
	default:
		rows, err = c.b.DB.QueryContext(ctx, query, stmt.Vars...)
	}
	if err != nil {
		err = c.b.Dialect.Translate(err)
	}
	return rows, err
}

// trace returns the func logging the statement once it ran
func (c *conn) trace(ctx context.Context, stmt *Statement, rowsAffected func() int64) func(*error) {
	begin := time.Now()
	return func(err *error) {
		c.b.Logger.Trace(ctx, begin, func() (string, int64) {
			sql, vars := stmt.String(), stmt.Vars
			if filter, ok := c.b.Logger.(logger.ParamsFilter); ok {
				sql, vars = filter.ParamsFilter(ctx, sql, vars...)
			}
			return c.b.Dialect.Explain(sql, vars...), rowsAffected()
		}, *err)
	}
}
