package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"

	"github.com/mickamy/relcount/orm"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors []ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) add(field, msg, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: msg, Hint: hint})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.validateStores(result)
	entities := c.validateEntities(result)
	c.validateRelationships(result, entities)
	c.Logging.validate(result)

	return result
}

func (c *Config) validateStores(result *ValidationResult) {
	if len(c.Stores) == 0 {
		result.add("stores", "at least one store is required", "")
		return
	}
	if _, ok := c.Stores[c.DefaultStore]; !ok {
		result.add("default_store", fmt.Sprintf("store %q is not declared", c.DefaultStore), "")
	}
	for name, s := range c.Stores {
		field := "stores." + name
		if s.MaxOpenConns < 0 {
			result.add(field+".max_open_conns", "must be non-negative", "")
		}
		if strings.TrimSpace(s.DSN) == "" {
			result.add(field+".dsn", "is required", "")
			continue
		}
		if _, err := orm.DialectByName(s.Driver); err != nil {
			result.add(field+".driver", fmt.Sprintf("unsupported driver %q", s.Driver), "use mysql, postgres or sqlite")
			continue
		}
		if err := validateDSN(s.Driver, s.DSN); err != nil {
			result.add(field+".dsn", err.Error(), "")
		}
	}
}

func validateDSN(driver, dsn string) error {
	switch driverName(driver) {
	case "mysql":
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return fmt.Errorf("invalid MySQL DSN: %w", err)
		}
	case "pgx":
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return fmt.Errorf("invalid PostgreSQL DSN: %w", err)
		}
	}
	return nil
}

func (c *Config) validateEntities(result *ValidationResult) map[string]EntityConfig {
	entities := make(map[string]EntityConfig, len(c.Entities))
	for i, e := range c.Entities {
		field := fmt.Sprintf("entities[%d]", i)
		if e.Name == "" {
			result.add(field+".name", "is required", "")
			continue
		}
		if _, dup := entities[e.Name]; dup {
			result.add(field+".name", fmt.Sprintf("entity %q declared twice", e.Name), "")
			continue
		}
		entities[e.Name] = e

		if len(e.Columns) == 0 {
			result.add(field+".columns", "at least one column is required", "")
		}
		if e.Store != "" {
			if _, ok := c.Stores[e.Store]; !ok {
				result.add(field+".store", fmt.Sprintf("store %q is not declared", e.Store), "")
			}
		}
		var names []string
		for j, s := range e.Scopes {
			sf := fmt.Sprintf("%s.scopes[%d]", field, j)
			if s.Name == "" || s.Where == "" {
				result.add(sf, "name and where are required", "")
				continue
			}
			if slices.Contains(names, s.Name) {
				result.add(sf+".name", fmt.Sprintf("scope %q declared twice", s.Name), "")
			}
			names = append(names, s.Name)
			if n := strings.Count(s.Where, "?"); n != len(s.Args) {
				result.add(sf+".args", fmt.Sprintf("clause has %d placeholders but %d args", n, len(s.Args)), "")
			}
		}
	}
	return entities
}

func (c *Config) validateRelationships(result *ValidationResult, entities map[string]EntityConfig) {
	for i, r := range c.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if r.Name == "" {
			result.add(field+".name", "is required", "")
		}
		if _, ok := entities[r.Parent]; !ok {
			result.add(field+".parent", fmt.Sprintf("unknown entity %q", r.Parent), "")
		}
		if _, ok := entities[r.Child]; !ok {
			result.add(field+".child", fmt.Sprintf("unknown entity %q", r.Child), "")
		}
		if n := strings.Count(r.Where, "?"); n != len(r.Args) {
			result.add(field+".args", fmt.Sprintf("clause has %d placeholders but %d args", n, len(r.Args)), "")
		}
	}
}

func (l LoggingConfig) validate(result *ValidationResult) {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		result.add("logging.level", fmt.Sprintf("unknown level %q", l.Level), "use debug, info, warn or error")
	}
	switch l.Format {
	case "json", "text":
	default:
		result.add("logging.format", fmt.Sprintf("unknown format %q", l.Format), "use json or text")
	}
}
