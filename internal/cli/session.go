package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/datamgr/internal/config"
	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/backends"
	"github.com/roach88/datamgr/internal/datastore/metrics"
	"github.com/roach88/datamgr/internal/logging"
	"github.com/roach88/datamgr/internal/migration"
)

// session is what a command needs to reach a data store: the resolved
// configuration, a logger, the migration catalog and the backend registry.
type session struct {
	cfg      *config.Config
	log      *slog.Logger
	catalog  *migration.Catalog
	migrator *migration.Manager
	registry *datastore.Registry
	out      *OutputFormatter
	closers  []func(context.Context) error
}

func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath, cmd.Flags())
	if err != nil {
		return nil, &ExitError{
			Code:    ExitCommandError,
			Message: "invalid configuration",
			Err:     err,
			Fix:     "check --config, the DATAMGR_* environment variables and the flags",
		}
	}
	if opts.Verbose {
		cfg.Log.Level = "DEBUG"
	}

	opts.runID = uuid.NewString()
	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid logging configuration", err)
	}
	log = log.With("run_id", opts.runID)

	catalog, err := migration.NewCatalog(migration.Auth())
	if err != nil {
		return nil, WrapExitError(ExitFailure, "build migration catalog", err)
	}
	if cfg.MigrationsPath != "" {
		if err := catalog.LoadDir(cfg.MigrationsPath); err != nil {
			return nil, &ExitError{
				Code:    ExitCommandError,
				Message: "cannot load migration sets",
				Err:     err,
				Fix:     "check the YAML and CUE files under --migrations",
			}
		}
	}

	s := &session{
		cfg:     cfg,
		log:     log,
		catalog: catalog,
		migrator: migration.NewManager(catalog, migration.Options{
			Logger:      log,
			LockTimeout: cfg.LockTimeout,
		}),
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
			NoColor:   opts.NoColor,
			RunID:     opts.runID,
		},
	}

	bopts := backends.Options{Options: datastore.Options{Logger: log, Migrator: s.migrator}}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "register metrics", err)
		}
		stop, err := serveMetrics(cfg.MetricsAddr, reg, log)
		if err != nil {
			return nil, &ExitError{
				Code:    ExitCommandError,
				Message: "cannot serve metrics",
				Err:     err,
				Fix:     "pick a free address for --metrics-addr",
			}
		}
		bopts.Metrics = m
		s.closers = append(s.closers, stop)
	}
	s.registry = backends.NewRegistry(bopts)
	return s, nil
}

// serveMetrics serves /metrics until the returned shutdown func is called.
func serveMetrics(addr string, g prometheus.Gatherer, log *slog.Logger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String(), "path", "/metrics")
	return srv.Shutdown, nil
}

func (s *session) Close(ctx context.Context) {
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			s.log.Warn("shutdown", "error", err)
		}
	}
}

// open connects to the configured store. With migrate set, the configured
// migration set runs during the connect.
func (s *session) open(ctx context.Context, migrate bool) (datastore.DataStore, error) {
	if s.cfg.ConnectionString == "" {
		return nil, &ExitError{
			Code:    ExitCommandError,
			Message: "no connection string",
			Fix:     "pass --conn or set DATAMGR_CONNECTION_STRING",
		}
	}
	set, validate := "", false
	if migrate {
		set, validate = s.cfg.MigrationSet, s.cfg.ValidateTables
	}
	ds, err := s.registry.Open(ctx, s.cfg.Backend, s.cfg.ConnectionString, set, validate)
	if err != nil {
		return nil, storeError("cannot open data store", err)
	}
	s.log.DebugContext(ctx, "connected", "backend", ds.Kind(), "capabilities", ds.Capabilities().String())
	return ds, nil
}

func (s *session) requireSet() error {
	if s.cfg.MigrationSet == "" {
		return &ExitError{
			Code:    ExitCommandError,
			Message: "no migration set",
			Fix:     "pass --set with one of the known sets",
			Cause:   "known sets: " + strings.Join(s.catalog.Names(), ", "),
		}
	}
	if _, ok := s.catalog.Get(s.cfg.MigrationSet); !ok {
		return &ExitError{
			Code:    ExitCommandError,
			Message: "unknown migration set " + s.cfg.MigrationSet,
			Cause:   "known sets: " + strings.Join(s.catalog.Names(), ", "),
			Fix:     "pass --migrations with the directory that defines it",
		}
	}
	return nil
}
