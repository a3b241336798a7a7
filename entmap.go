package entmap

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/entmap/entmap/logger"
	"github.com/entmap/entmap/schema"
	"golang.org/x/sync/singleflight"
)

// Config DB config
type Config struct {
	// Logger traces every backend operation
	Logger logger.Interface
	// NowFunc the function to be used when timing an operation
	NowFunc func() time.Time
}

// ConfigOption use functional option for Config.
type ConfigOption func(c *Config)

// WithLogger set logger.
func WithLogger(logger logger.Interface) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithNowFunc set NowFunc.
func WithNowFunc(nowFunc func() time.Time) ConfigOption {
	return func(c *Config) {
		c.NowFunc = nowFunc
	}
}

// DB binds a sealed registry to a backend
type DB struct {
	*Config
	Backend  Backend
	Registry *schema.Registry

	conn *connection
}

type connection struct {
	connected atomic.Bool
	group     singleflight.Group
}

// Open seals the registry and binds it to the backend, a registry with configuration errors is refused
func Open(backend Backend, reg *schema.Registry, opts ...ConfigOption) (*DB, error) {
	if backend == nil {
		return nil, ErrMissingBackend
	}

	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidRegistry)
	}

	if err := reg.Seal(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, err)
	}

	config := &Config{}
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = logger.Default
	}

	if config.NowFunc == nil {
		config.NowFunc = time.Now
	}

	return &DB{Config: config, Backend: backend, Registry: reg, conn: &connection{}}, nil
}

// Session returns a DB sharing the backend and connection state, with its own config
func (db *DB) Session(config *Config) *DB {
	txConfig := *db.Config
	if config != nil {
		if config.Logger != nil {
			txConfig.Logger = config.Logger
		}
		if config.NowFunc != nil {
			txConfig.NowFunc = config.NowFunc
		}
	}

	return &DB{Config: &txConfig, Backend: db.Backend, Registry: db.Registry, conn: db.conn}
}

// Debug start debug mode
func (db *DB) Debug() *DB {
	return db.Session(&Config{Logger: db.Logger.LogMode(logger.Info)})
}

// Connected reports whether Connect succeeded
func (db *DB) Connected() bool {
	return db.conn.connected.Load()
}

// Connect connects the backend once, concurrent callers share a single attempt; a failed attempt may be retried
func (db *DB) Connect(ctx context.Context) error {
	if db.conn.connected.Load() {
		return nil
	}

	_, err, _ := db.conn.group.Do("connect", func() (interface{}, error) {
		if db.conn.connected.Load() {
			return nil, nil
		}

		begin := db.NowFunc()
		err := db.Backend.Connect(ctx)
		db.Logger.Trace(ctx, begin, func() (string, int64) { return "connect", -1 }, err)
		if err != nil {
			return nil, err
		}

		db.conn.connected.Store(true)
		return nil, nil
	})
	return err
}

// Build connects and creates the storage of every registered table
func (db *DB) Build(ctx context.Context) error {
	if err := db.Connect(ctx); err != nil {
		return err
	}

	begin := db.NowFunc()
	err := db.Backend.CreateSchema(ctx)
	db.Logger.Trace(ctx, begin, func() (string, int64) {
		return "create schema", int64(len(db.Registry.Tables()))
	}, err)
	return err
}

// DumpSchema connects and writes the schema listing to w
func (db *DB) DumpSchema(ctx context.Context, w io.Writer) error {
	if err := db.Connect(ctx); err != nil {
		return err
	}
	return db.Registry.Dump(w)
}

// trace runs one backend operation through the logger
func (db *DB) trace(ctx context.Context, op string, fc func() (int64, error)) error {
	begin := db.NowFunc()
	rows, err := fc()
	db.Logger.Trace(ctx, begin, func() (string, int64) { return op, rows }, err)
	return err
}
