// Package app wires the idreg server runtime: config, logging, store selection and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"idreg/cmd/identity"
	authapi "idreg/cmd/internal/auth/api"
	"idreg/cmd/security/redact"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// backend is the selected identity store plus whatever it owns.
type backend struct {
	kind  string
	store identity.Store
	ready pinger // nil for the in-memory store
	close func()
}

// App is the idreg server runtime.
type App struct {
	cfg Config
	log Logger

	backend  backend
	registry *prometheus.Registry
	handler  http.Handler
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	be, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, be)
	if err != nil {
		be.close()
		return nil, err
	}
	return a, nil
}

func wire(cfg Config, log Logger, be backend) (*App, error) {
	creds, err := identity.CredentialsFromEnv()
	if err != nil {
		return nil, err
	}
	fp := redact.FromEnv()

	opts := []identity.Option{
		identity.WithLogger(log),
		identity.WithFingerprinter(fp),
	}

	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := identity.NewMetrics(registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, identity.WithMetrics(m))
	}

	svc, err := identity.NewService(identity.Config{StoreTimeout: cfg.StoreTimeout}, be.store, creds, opts...)
	if err != nil {
		return nil, err
	}

	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	auth, err := authapi.NewHandler(log, authCfg, creds.Policy(), svc, authapi.WithFingerprinter(fp))
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, be.ready, registry, auth)

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  be,
		registry: registry,
		handler:  WithRequestLogging(WithSecurityHeaders(mux), log),
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Close releases store resources.
func (a *App) Close() { a.backend.close() }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.backend.kind, "metrics", a.registry != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newBackend opens the store named by cfg.StoreKind.
func newBackend(ctx context.Context, cfg Config, log Logger) (backend, error) {
	switch kind := cfg.StoreKind(); kind {
	case StoreMemory:
		if cfg.storeIsAuto() {
			// Identities are lost on restart; only say so loudly when nobody asked for it.
			log.Warn("store.memory.non_durable", "reason", "IDREG_STORE=auto without IDREG_DATABASE_URL")
		} else {
			log.Info("store.memory")
		}
		return backend{kind: kind, store: identity.NewInMemoryStore(), close: func() {}}, nil

	case StoreSQLite:
		st, err := identity.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		log.Info("store.sqlite", "path", cfg.SQLitePath)
		return backend{
			kind:  kind,
			store: st,
			ready: st,
			close: func() {
				if err := st.Close(); err != nil {
					log.Error("store.close.fail", "err", err)
				}
			},
		}, nil

	case StorePostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return backend{}, err
		}
		st, err := postgresStore(ctx, cfg, pool)
		if err != nil {
			pool.Close()
			return backend{}, err
		}
		log.Info("store.postgres", "schema", cfg.DBSchema, "auto_migrate", cfg.AutoMigrate)
		// The app owns the pool; PostgresStore.Close is a no-op.
		return backend{kind: kind, store: st, ready: st, close: pool.Close}, nil

	default:
		return backend{}, fmt.Errorf("app: unknown store %q", kind)
	}
}

func postgresStore(ctx context.Context, cfg Config, pool *pgxpool.Pool) (*identity.PostgresStore, error) {
	st, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return st, nil
}
