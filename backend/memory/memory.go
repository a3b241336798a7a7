package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/entmap/entmap/schema"
)

var (
	// ErrNotConnected operation before Connect
	ErrNotConnected = errors.New("memory backend not connected")
	// ErrMissingTable table storage not created, see CreateSchema
	ErrMissingTable = errors.New("missing table")
	// ErrDuplicateKey a record with the same id exists
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrUnsupported expression can not be evaluated
	ErrUnsupported = errors.New("unsupported expression")
)

// Config memory backend config
type Config struct {
	// MaxDepth number of association levels joined to every root record
	MaxDepth int
}

// Option use functional option for Config.
type Option func(*Config)

// WithMaxDepth set MaxDepth.
func WithMaxDepth(depth int) Option {
	return func(c *Config) {
		c.MaxDepth = depth
	}
}

// Backend keeps records in process memory, evaluating queries over joined flat rows
type Backend struct {
	Config

	reg       *schema.Registry
	mu        sync.RWMutex
	connected bool
	stores    map[*schema.Table]*store
	joins     map[string]*joinSet
}

// New creates a backend over the registry
func New(reg *schema.Registry, opts ...Option) *Backend {
	b := &Backend{Config: Config{MaxDepth: 1}, reg: reg}
	for _, opt := range opts {
		opt(&b.Config)
	}
	if b.MaxDepth < 0 {
		b.MaxDepth = 0
	}
	return b
}

// Connect marks the backend ready
func (b *Backend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

// CreateSchema allocates the record store of every table and join table, existing data is kept
func (b *Backend) CreateSchema(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return ErrNotConnected
	}

	if b.stores == nil {
		b.stores = map[*schema.Table]*store{}
		b.joins = map[string]*joinSet{}
	}

	for _, table := range b.reg.Tables() {
		if _, ok := b.stores[table]; !ok {
			b.stores[table] = newStore(table)
		}
		for _, field := range table.Fields {
			if field.JoinTable != "" && b.joins[field.JoinTable] == nil {
				b.joins[field.JoinTable] = &joinSet{}
			}
		}
	}
	return nil
}

func (b *Backend) ready() error {
	if !b.connected {
		return ErrNotConnected
	}
	if b.stores == nil {
		return ErrMissingTable
	}
	return nil
}
