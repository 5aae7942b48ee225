package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/mickamy/relcount/internal/config"
	"github.com/mickamy/relcount/internal/logging"
	"github.com/mickamy/relcount/orm"
)

var version = "dev"

type options struct {
	configPath          string
	entity              string
	counts              []string
	where               string
	limit               int
	withoutGlobalScopes bool
	metricsFile         string
	showVersion         bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("relcount", pflag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to the config file")
	fs.StringVar(&opts.entity, "entity", "", "entity to load (required)")
	fs.StringArrayVar(&opts.counts, "count", nil, `relation to count, optionally "relation as alias" (repeatable)`)
	fs.StringVar(&opts.where, "where", "", "raw WHERE clause for the parent rows")
	fs.IntVar(&opts.limit, "limit", 0, "maximum number of parent rows (0 means no limit)")
	fs.BoolVar(&opts.withoutGlobalScopes, "without-global-scopes", false, "skip the entity's global scopes")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
	fs.String("default-store", "", "store used by entities without one")
	return fs
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "relcount:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := newFlagSet(&opts)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are already descriptive
	}

	if opts.showVersion {
		fmt.Fprintln(stdout, "relcount", version)
		return nil
	}
	if opts.entity == "" {
		return errors.New("--entity is required")
	}

	cfg, err := config.Load(opts.configPath, fs)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	if result := cfg.Validate(); result.HasErrors() {
		return fmt.Errorf("invalid config: %s", result.Error())
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	ctx = logging.WithLogger(ctx, logger)

	schema, err := cfg.BuildSchema()
	if err != nil {
		return err //nolint:wrapcheck // typed error
	}
	entity, ok := schema.Entity(opts.entity)
	if !ok {
		return fmt.Errorf("unknown entity %q", opts.entity)
	}

	reg := prometheus.NewRegistry()
	metrics, err := orm.NewMetrics(reg)
	if err != nil {
		return err //nolint:wrapcheck // registration of fresh collectors
	}

	mgr, err := cfg.OpenStores(orm.WithMetrics(metrics), orm.WithLogger(logger.QueryLogger()))
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Warn("closing stores", "error", err)
		}
	}()

	rows, err := loadRows(ctx, mgr, entity, opts)
	if err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	enc := json.NewEncoder(stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err //nolint:wrapcheck // stdout write
		}
	}
	return nil
}

// loadRows fetches the entity's rows with the requested counts, logging
// through the logger carried by ctx.
func loadRows(ctx context.Context, mgr *orm.Manager, entity *orm.Entity, opts options) ([]orm.Record, error) {
	log := logging.FromContext(ctx).WithFields("entity", entity.Name(), "store", entity.Store())

	db, err := mgr.DB(entity.Store())
	if err != nil {
		return nil, err //nolint:wrapcheck // typed error
	}

	log.Debug("counting relations", "counts", opts.counts)
	rows, err := buildQuery(db, entity, opts).All(ctx)
	if err != nil {
		log.Error("count failed", "error", err)
		return nil, err //nolint:wrapcheck // typed error
	}
	log.Info("loaded rows", "rows", len(rows), "counts", opts.counts)
	return rows, nil
}

func buildQuery(db *orm.DB, entity *orm.Entity, opts options) *orm.Query[orm.Record] {
	q := orm.Records(db, entity).OrderBy(entity.PrimaryKey())
	if opts.withoutGlobalScopes {
		q = q.WithoutGlobalScopes()
	}
	if opts.where != "" {
		q = q.Where(opts.where)
	}
	if opts.limit > 0 {
		q = q.Limit(opts.limit)
	}
	return q.WithCount(opts.counts...)
}
