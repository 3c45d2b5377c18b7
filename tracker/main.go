package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/waferline-labs/waferline-go/internal/groupexport"
	"github.com/waferline-labs/waferline-go/internal/platform/auditlog"
	"github.com/waferline-labs/waferline-go/internal/platform/auth"
	"github.com/waferline-labs/waferline-go/internal/platform/env"
	"github.com/waferline-labs/waferline-go/internal/platform/httpserver"
	"github.com/waferline-labs/waferline-go/internal/platform/objectstore"
	"github.com/waferline-labs/waferline-go/internal/platform/postgres"
	"github.com/waferline-labs/waferline-go/internal/platform/programcatalog"
	"github.com/waferline-labs/waferline-go/internal/platform/telemetry"
	pgstore "github.com/waferline-labs/waferline-go/internal/repo/postgres"
	"github.com/waferline-labs/waferline-go/internal/service/groups"
	"github.com/waferline-labs/waferline-go/internal/service/stats"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("WAFERLINE_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("WAFERLINE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := pgstore.EnsureSchema(migrateCtx, db); err != nil {
		cancel()
		logger.Error("schema migration failed", "error", err)
		os.Exit(1)
	}
	if _, err := db.ExecContext(migrateCtx, auditlog.Schema); err != nil {
		cancel()
		logger.Error("audit schema migration failed", "error", err)
		os.Exit(1)
	}
	cancel()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBucket(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	var catalog *programcatalog.Catalog
	if path := strings.TrimSpace(env.String("WAFERLINE_PROGRAM_CATALOG", "")); path != "" {
		loaded, err := programcatalog.Load(path)
		if err != nil {
			logger.Error("invalid program catalog", "path", path, "error", err)
			os.Exit(2)
		}
		catalog = &loaded
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeOIDC:
		oidcAuth, err := auth.NewOIDCAuthenticator(ctx, authCfg)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(2)
		}
		authenticator = oidcAuth
	default:
		authenticator = auth.NewDevAuthenticator(authCfg)
	}

	metrics := telemetry.NewMetrics("waferline")

	groupStore := pgstore.NewGroupStore(db)
	groupService := groups.New(groupStore, catalog)
	statsService := stats.New(groupStore)
	snapshots := groupexport.NewSnapshotSink(groupexport.MinioPutter{Client: storeClient}, storeCfg.BucketSnapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("tracker"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"tracker",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
		),
	)
	mux.Handle("GET /metrics", metrics.Handler())

	api := newTrackerAPI(logger, db, groupService, statsService, snapshots, metrics)
	api.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz", "/metrics"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         "tracker",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "tracker", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
