package orm

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errUnknownStore = errors.New("no such store")

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMetrics makes the Manager report acquisitions to m.
func WithMetrics(m *Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger attaches l to every DB added to the Manager afterwards.
func WithLogger(l Logger) ManagerOption {
	return func(mgr *Manager) { mgr.logger = l }
}

// Manager holds the named stores of an application. It is the
// StoreProvider count queries use to reach a child entity's store, which
// may be a different database than the parent's.
type Manager struct {
	mu       sync.RWMutex
	dbs      map[string]*DB
	def      string
	metrics  *Metrics
	logger   Logger
	released func(store string) // test hook
}

// NewManager returns a Manager whose empty store name resolves to
// defaultStore.
func NewManager(defaultStore string, opts ...ManagerOption) *Manager {
	m := &Manager{
		dbs: make(map[string]*DB),
		def: defaultStore,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers db under name and returns the store-bound *DB to build
// queries with. db itself is not modified.
func (m *Manager) Add(name string, db *DB) *DB {
	bound := &DB{raw: db.raw, d: db.d, logger: db.logger, name: name, mgr: m}
	if bound.logger == nil {
		bound.logger = m.logger
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dbs[name] = bound
	return bound
}

// DB returns the store registered under name. The empty name selects the
// default store.
func (m *Manager) DB(name string) (*DB, error) {
	name = m.resolve(name)

	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.dbs[name]
	if !ok {
		return nil, &StoreUnavailableError{Store: name, Err: errUnknownStore}
	}
	return db, nil
}

// Default returns the default store name.
func (m *Manager) Default() string { return m.def }

// Acquire checks a dedicated connection out of the named store's pool.
// The returned release func returns it to the pool.
func (m *Manager) Acquire(ctx context.Context, store string) (Querier, func(), error) {
	db, err := m.DB(store)
	if err != nil {
		m.metrics.acquireFailed(m.resolve(store))
		return nil, nil, err
	}

	conn, release, err := db.conn(ctx)
	if err != nil {
		m.metrics.acquireFailed(db.name)
		return nil, nil, err
	}

	start := time.Now()
	return conn, func() {
		release()
		m.metrics.observeHeld(db.name, time.Since(start))
		if m.released != nil {
			m.released(db.name)
		}
	}, nil
}

// Close closes every registered store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, db := range m.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) resolve(name string) string {
	if name == "" {
		return m.def
	}
	return name
}
