package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linkdeck/linkdeck/pkg/audit"
	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/config"
	"github.com/linkdeck/linkdeck/pkg/httputil"
	"github.com/linkdeck/linkdeck/pkg/middleware"
	"github.com/linkdeck/linkdeck/pkg/observability"
	"github.com/linkdeck/linkdeck/pkg/orgs"
	"github.com/linkdeck/linkdeck/pkg/rbac"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional, env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, logger); err != nil {
		logger.WithError(err).Fatal("service exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string, logger *logrus.Logger) error {
	// Tracing
	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.WithError(err).Warn("tracer shutdown failed")
			}
		}()
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("database connection established")

	// Audit trail
	var sink audit.Logger = audit.NoopLogger{}
	if cfg.Audit.Enabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		sink = dbLogger
	}
	dispatcher := audit.NewDispatcher(sink, cfg.Audit.QueueSize, logger)
	defer dispatcher.Close()

	if cfg.Audit.Enabled && cfg.Audit.ArchiveEnabled {
		archiver, err := audit.NewArchiver(ctx, db, audit.ArchiverConfig{
			RetentionDays: cfg.Audit.RetentionDays,
			Schedule:      cfg.Audit.Schedule,
			S3Endpoint:    cfg.Audit.S3Endpoint,
			S3Region:      cfg.Audit.S3Region,
			S3Bucket:      cfg.Audit.S3Bucket,
			S3AccessKey:   cfg.Audit.S3AccessKey,
			S3SecretKey:   cfg.Audit.S3SecretKey,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize audit archiver: %w", err)
		}
		if err := archiver.Start(); err != nil {
			return fmt.Errorf("failed to start audit archiver: %w", err)
		}
		defer archiver.Stop()
	}

	// Session strategy
	strategy, err := buildStrategy(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to build session strategy: %w", err)
	}
	users := auth.NewPostgresUserStore(db)
	validator := auth.NewValidator(strategy, users, dispatcher, logger)

	// Organizations and authorization
	svc := orgs.NewPostgresService(db)
	guard := orgs.NewGuard(svc)

	metrics := observability.NewMetrics()
	roleCache, redisClient, err := buildRoleCache(ctx, cfg.RoleCache)
	if err != nil {
		return fmt.Errorf("failed to build role cache: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	resolver := rbac.NewResolver(roleCache, svc, logger)

	// Hot-reload: log level and role cache honor file edits without a
	// restart. Everything else needs one.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
				logger.SetLevel(observability.ParseLevel(next.Observability.LogLevel))
				roleCache.Purge(ctx)
			})
			if err != nil {
				logger.WithError(err).Warn("config watch unavailable")
			}
		}()
	}

	engine := rbac.NewEngine(svc, resolver, rbac.NewMetrics(metrics.Registry()), logger)

	handlers := orgs.NewHandlers(svc, guard, dispatcher, logger)

	// Routing
	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.CORSMiddleware(cfg.Server.AllowedOrigins))
	if cfg.Observability.MetricsEnabled {
		router.Use(metrics.Middleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequireSession(validator))

	guarded := func(p rbac.Permission, h http.HandlerFunc) http.Handler {
		return middleware.RequirePermission(engine, svc, dispatcher, p)(h)
	}
	api.Handle("/orgs/{org_id}/members", guarded(rbac.PermMembersRead, handlers.ListMembers)).Methods(http.MethodGet)
	api.Handle("/orgs/{org_id}/members", guarded(rbac.PermMembersWrite, handlers.AddMember)).Methods(http.MethodPost)
	api.Handle("/orgs/{org_id}/members/{user_id}", guarded(rbac.PermMembersWrite, handlers.UpdateMemberRole)).Methods(http.MethodPut)
	api.Handle("/orgs/{org_id}/members/{user_id}", guarded(rbac.PermMembersWrite, handlers.RemoveMember)).Methods(http.MethodDelete)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "linkdeckd")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg, db, metrics)

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", server.Addr).Info("starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("health server shutdown failed")
	}
	return nil
}

// buildStrategy selects the single session validation path for this process
func buildStrategy(ctx context.Context, cfg config.SessionConfig) (auth.SessionStrategy, error) {
	switch cfg.Strategy {
	case "provider":
		return auth.NewProviderStrategy(auth.ProviderConfig{
			PublicSessionURL: cfg.PublicSessionURL,
			AdminSessionURL:  cfg.AdminSessionURL,
			Timeout:          cfg.ProviderTimeout,
		}), nil
	case "oidc":
		return auth.NewOIDCStrategy(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			TokenCookie:  cfg.OIDCTokenCookie,
		})
	default:
		return nil, fmt.Errorf("unknown session strategy: %s", cfg.Strategy)
	}
}

func buildRoleCache(ctx context.Context, cfg config.RoleCacheConfig) (rbac.RoleCache, *redis.Client, error) {
	switch cfg.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		if cfg.RedisDB != 0 {
			opts.DB = cfg.RedisDB
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return rbac.NewRedisRoleCache(client, cfg.TTL), client, nil
	default:
		return rbac.NewMemoryRoleCache(cfg.Size, cfg.TTL), nil, nil
	}
}

func newHealthServer(cfg *config.Config, db *sql.DB, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	return &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: mux,
	}
}
