package orm

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
)

// Querier is the common interface for DB, Tx and Conn.
// Query factories accept this so that queries work with all of them.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	dialect() Dialect
	stores() StoreProvider
}

// StoreProvider hands out connections to named stores. Count plans run on
// a connection acquired for the child entity's store; release must be
// called once the plan has finished, whatever its outcome.
type StoreProvider interface {
	Acquire(ctx context.Context, store string) (q Querier, release func(), err error)
}

// Logger is the interface for query logging.
type Logger interface {
	Log(ctx context.Context, query string, args ...any)
}

// SlogLogger logs queries at debug level through a *slog.Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a Logger writing to l, or to slog.Default() when l
// is nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Log(ctx context.Context, query string, args ...any) {
	s.l.DebugContext(ctx, "orm query", slog.String("sql", query), slog.Any("args", args))
}

var errForeignStore = errors.New("not served by this connection")

// DB wraps *sql.DB with a Dialect and satisfies Querier.
// A DB obtained from a Manager knows its store name and resolves other
// stores through the Manager; a standalone DB only serves its own store.
type DB struct {
	raw    *sql.DB
	d      Dialect
	logger Logger
	name   string
	mgr    StoreProvider
}

// New wraps a *sql.DB with the given Dialect.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{raw: db, d: d}
}

// Debug returns a new *DB that logs every query using the given Logger.
// The original DB is not modified.
func (db *DB) Debug(l Logger) *DB {
	db2 := *db
	db2.logger = l
	return &db2
}

// Store returns the store name this DB is registered under.
func (db *DB) Store() string { return db.name }

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if db.logger != nil {
		db.logger.Log(ctx, query, args...)
	}
	return db.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if db.logger != nil {
		db.logger.Log(ctx, query, args...)
	}
	return db.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

// Acquire returns a dedicated connection to the DB's own store.
// Any other store name yields a *StoreUnavailableError.
func (db *DB) Acquire(ctx context.Context, store string) (Querier, func(), error) {
	if store != db.name {
		return nil, nil, &StoreUnavailableError{Store: store, Err: errForeignStore}
	}
	conn, release, err := db.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, release, nil
}

func (db *DB) conn(ctx context.Context) (*Conn, func(), error) {
	c, err := db.raw.Conn(ctx)
	if err != nil {
		return nil, nil, &StoreUnavailableError{Store: db.name, Err: err}
	}
	conn := &Conn{raw: c, d: db.d, logger: db.logger, provider: db.stores()}
	return conn, func() { _ = c.Close() }, nil
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, nil)
	if err != nil {
		return nil, err //nolint:wrapcheck // thin wrapper
	}
	t := &Tx{raw: tx, d: db.d, logger: db.logger, store: db.name}
	t.provider = &txStores{tx: t, next: db.stores()}
	return t, nil
}

// Transaction executes fn within a transaction.
// If fn returns nil the transaction is committed.
// If fn returns an error or panics the transaction is rolled back.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	err = fn(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying *sql.DB.
func (db *DB) Close() error { return db.raw.Close() } //nolint:wrapcheck // thin wrapper

func (db *DB) dialect() Dialect { return db.d }

func (db *DB) stores() StoreProvider {
	if db.mgr != nil {
		return db.mgr
	}
	return db
}

// Tx wraps *sql.Tx with a Dialect and satisfies Querier.
// Relationship counts issued from a Tx run inside the transaction for its
// own store, one at a time, and see its uncommitted rows. Other stores are
// reached through their own connections.
type Tx struct {
	raw      *sql.Tx
	d        Dialect
	logger   Logger
	store    string
	provider StoreProvider
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx.logger != nil {
		tx.logger.Log(ctx, query, args...)
	}
	return tx.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx.logger != nil {
		tx.logger.Log(ctx, query, args...)
	}
	return tx.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.raw.Commit() } //nolint:wrapcheck // thin wrapper

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error { return tx.raw.Rollback() } //nolint:wrapcheck // thin wrapper

func (tx *Tx) dialect() Dialect { return tx.d }

func (tx *Tx) stores() StoreProvider { return tx.provider }

// txStores serves the transaction's store from the transaction itself and
// defers every other store to next.
type txStores struct {
	mu   sync.Mutex
	tx   *Tx
	next StoreProvider
}

func (s *txStores) Acquire(ctx context.Context, store string) (Querier, func(), error) {
	if !s.owns(store) {
		return s.next.Acquire(ctx, store) //nolint:wrapcheck // typed errors
	}
	s.mu.Lock()
	return s.tx, s.mu.Unlock, nil
}

// owns reports whether store names the transaction's store, after the
// Manager maps "" to its default.
func (s *txStores) owns(store string) bool {
	if r, ok := s.next.(interface{ resolve(string) string }); ok {
		store = r.resolve(store)
	}
	return store == s.tx.store
}

// Conn is a single connection checked out of a store's pool.
type Conn struct {
	raw      *sql.Conn
	d        Dialect
	logger   Logger
	provider StoreProvider
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.logger != nil {
		c.logger.Log(ctx, query, args...)
	}
	return c.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.logger != nil {
		c.logger.Log(ctx, query, args...)
	}
	return c.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (c *Conn) dialect() Dialect { return c.d }

func (c *Conn) stores() StoreProvider { return c.provider }
