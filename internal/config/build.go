package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Drivers for every supported store.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mickamy/relcount/orm"
	"github.com/mickamy/relcount/scope"
)

// driverName maps a configured driver to its database/sql driver name.
func driverName(driver string) string {
	switch strings.ToLower(driver) {
	case "mysql", "mariadb":
		return "mysql"
	case "postgres", "postgresql", "pgx":
		return "pgx"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return driver
	}
}

// BuildSchema declares every configured entity, global scope and
// relationship. Entities without a store live in the default store.
func (c *Config) BuildSchema() (*orm.Schema, error) {
	s := orm.NewSchema()

	for _, ec := range c.Entities {
		opts := []orm.EntityOption{orm.Columns(ec.Columns...), orm.Store(ec.Store)}
		if ec.Table != "" {
			opts = append(opts, orm.Table(ec.Table))
		}
		if ec.PrimaryKey != "" {
			opts = append(opts, orm.PrimaryKey(ec.PrimaryKey))
		}
		if len(ec.WithCount) > 0 {
			opts = append(opts, orm.DefaultCounts(ec.WithCount...))
		}
		if _, err := s.Define(ec.Name, opts...); err != nil {
			return nil, err //nolint:wrapcheck // already prefixed
		}
		for _, sc := range ec.Scopes {
			if err := s.AddGlobalScope(ec.Name, sc.Name, scope.Where(sc.Where, sc.Args...)); err != nil {
				return nil, err //nolint:wrapcheck // typed error
			}
		}
	}

	for _, rc := range c.Relationships {
		var opts []orm.RelationOption
		if rc.ForeignKey != "" {
			opts = append(opts, orm.ForeignKey(rc.ForeignKey))
		}
		if rc.LocalKey != "" {
			opts = append(opts, orm.LocalKey(rc.LocalKey))
		}
		if len(rc.WithoutGlobalScopes) > 0 {
			names := rc.WithoutGlobalScopes
			if names[0] == "*" {
				names = nil
			}
			opts = append(opts, orm.WithoutGlobalScopes(names...))
		}
		if rc.Where != "" {
			opts = append(opts, orm.Constrain(scope.Where(rc.Where, rc.Args...)))
		}
		if _, err := s.HasMany(rc.Parent, rc.Name, rc.Child, opts...); err != nil {
			return nil, err //nolint:wrapcheck // typed error
		}
	}
	return s, nil
}

// OpenStores opens every configured store and registers it with a new
// Manager. On failure the stores opened so far are closed.
func (c *Config) OpenStores(opts ...orm.ManagerOption) (*orm.Manager, error) {
	m := orm.NewManager(c.DefaultStore, opts...)
	for name, sc := range c.Stores {
		db, err := sc.open()
		if err != nil {
			return nil, errors.Join(fmt.Errorf("store %q: %w", name, err), m.Close())
		}
		m.Add(name, db)
	}
	return m, nil
}

func (s StoreConfig) open() (*orm.DB, error) {
	d, err := orm.DialectByName(s.Driver)
	if err != nil {
		return nil, err //nolint:wrapcheck // already prefixed
	}
	raw, err := sql.Open(driverName(s.Driver), s.DSN)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}

	maxOpen := s.MaxOpenConns
	if d == orm.SQLite && strings.Contains(s.DSN, ":memory:") {
		// Each connection to ":memory:" opens a fresh database.
		maxOpen = 1
	}
	if maxOpen > 0 {
		raw.SetMaxOpenConns(maxOpen)
	}
	if s.MaxIdleConns > 0 {
		raw.SetMaxIdleConns(s.MaxIdleConns)
	}
	if s.ConnMaxLifetime > 0 {
		raw.SetConnMaxLifetime(s.ConnMaxLifetime)
	}
	return orm.New(raw, d), nil
}
