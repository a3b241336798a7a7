package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/entmap/entmap/dialect"
	"github.com/entmap/entmap/internal/stmt_store"
	"github.com/entmap/entmap/logger"
	"github.com/entmap/entmap/schema"
)

var (
	// ErrNotConnected operation before Connect
	ErrNotConnected = errors.New("sql backend not connected")
	// ErrUnsupported query can not be compiled
	ErrUnsupported = errors.New("unsupported query")
)

// Config sql backend config
type Config struct {
	// MaxDepth number of association levels joined to every root row
	MaxDepth int
	// PrepareStmt caches every statement as a prepared statement
	PrepareStmt   bool
	StmtCacheSize int
	// Logger traces every executed statement
	Logger logger.Interface
}

// Option use functional option for Config.
type Option func(*Config)

// WithMaxDepth set MaxDepth.
func WithMaxDepth(depth int) Option {
	return func(c *Config) {
		c.MaxDepth = depth
	}
}

// WithPrepareStmt enables the prepared statement cache holding at most size statements
func WithPrepareStmt(size int) Option {
	return func(c *Config) {
		c.PrepareStmt = true
		c.StmtCacheSize = size
	}
}

// WithLogger set Logger.
func WithLogger(l logger.Interface) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// Backend maps queries onto a database/sql connection pool, one SQL table per Table plus one per join table
type Backend struct {
	Config
	Dialect dialect.Dialect
	DB      *sql.DB

	reg       *schema.Registry
	mu        sync.Mutex
	connected bool
	stmtMu    sync.Mutex
	stmts     stmt_store.Store
}

// Open returns a backend over an already opened pool
func Open(reg *schema.Registry, d dialect.Dialect, db *sql.DB, opts ...Option) *Backend {
	b := &Backend{Config: Config{MaxDepth: 1}, Dialect: d, DB: db, reg: reg}
	for _, opt := range opts {
		opt(&b.Config)
	}

	if b.MaxDepth < 0 {
		b.MaxDepth = 0
	}
	if b.Logger == nil {
		b.Logger = logger.Default
	}
	if b.PrepareStmt {
		b.stmts = stmt_store.New(b.StmtCacheSize)
	}
	return b
}

// OpenDSN opens a pool with a registered database/sql driver, the dialect is chosen by driver name
//
//	sqldb.OpenDSN(reg, "sqlite", "file:app.db")
//	sqldb.OpenDSN(reg, "pgx", "postgres://localhost/app")
func OpenDSN(reg *schema.Registry, driverName, dsn string, opts ...Option) (*Backend, error) {
	d, err := dialect.New(driverName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	return Open(reg, d, db, opts...), nil
}

// Connect checks the pool is reachable
func (b *Backend) Connect(ctx context.Context) error {
	if err := b.DB.PingContext(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

// Close closes the cached statements and the pool
func (b *Backend) Close() error {
	b.stmtMu.Lock()
	if b.stmts != nil {
		b.stmts.Purge()
	}
	b.stmtMu.Unlock()

	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()

	return b.DB.Close()
}

func (b *Backend) ready() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return ErrNotConnected
	}
	return nil
}

// transaction runs fc in a transaction, rolled back when fc fails
func (b *Backend) transaction(ctx context.Context, fc func(c *conn) error) (err error) {
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fc(&conn{b: b, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
