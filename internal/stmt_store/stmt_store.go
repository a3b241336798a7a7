package stmt_store

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Stmt cached prepared statement, prepared is closed once preparation finished
type Stmt struct {
	*sql.Stmt
	prepared   chan struct{}
	prepareErr error
}

func (stmt *Stmt) Error() error {
	return stmt.prepareErr
}

func (stmt *Stmt) Close() error {
	<-stmt.prepared

	if stmt.Stmt != nil {
		return stmt.Stmt.Close()
	}
	return nil
}

// Store prepared statements keyed by query
type Store interface {
	New(ctx context.Context, key string, connPool ConnPool, locker sync.Locker) (*Stmt, error)
	Keys() []string
	Get(key string) (*Stmt, bool)
	Set(key string, value *Stmt)
	Delete(key string)
	Purge()
}

const defaultMaxSize = 1 << 10

// New returns a store keeping at most size statements, the least recently used one is closed on eviction
func New(size int) Store {
	if size <= 0 {
		size = defaultMaxSize
	}

	cache, err := lru.NewWithEvict(size, func(_, v interface{}) {
		if stmt, ok := v.(*Stmt); ok && stmt != nil {
			go stmt.Close()
		}
	})
	if err != nil {
		panic(err)
	}
	return &lruStore{lru: cache}
}

type lruStore struct {
	lru *lru.Cache
}

func (s *lruStore) Keys() []string {
	keys := make([]string, 0, s.lru.Len())
	for _, k := range s.lru.Keys() {
		keys = append(keys, k.(string))
	}
	return keys
}

func (s *lruStore) Get(key string) (*Stmt, bool) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}

	stmt := v.(*Stmt)
	<-stmt.prepared
	return stmt, true
}

func (s *lruStore) Set(key string, value *Stmt) {
	s.lru.Add(key, value)
}

func (s *lruStore) Delete(key string) {
	s.lru.Remove(key)
}

// Purge evicts every statement, closing them
func (s *lruStore) Purge() {
	s.lru.Purge()
}

// ConnPool prepares statements
type ConnPool interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// New prepares key on conn, the placeholder is cached before preparing so concurrent callers wait on it;
// locker must be held by the caller and is released once the placeholder is stored
func (s *lruStore) New(ctx context.Context, key string, conn ConnPool, locker sync.Locker) (_ *Stmt, err error) {
	cacheStmt := &Stmt{prepared: make(chan struct{})}
	s.Set(key, cacheStmt)
	locker.Unlock()

	defer close(cacheStmt.prepared)

	cacheStmt.Stmt, err = conn.PrepareContext(ctx, key)
	if err != nil {
		cacheStmt.prepareErr = err
		s.Delete(key)
		return &Stmt{}, err
	}

	return cacheStmt, nil
}
