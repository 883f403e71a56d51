package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/tracechain/tracechain/internal/app"
	"github.com/tracechain/tracechain/internal/audit"
	audithttp "github.com/tracechain/tracechain/internal/audit/http"
	"github.com/tracechain/tracechain/internal/auth"
	"github.com/tracechain/tracechain/internal/guard"
	jobmetrics "github.com/tracechain/tracechain/internal/jobs"
	"github.com/tracechain/tracechain/internal/observability"
	"github.com/tracechain/tracechain/internal/platform/cache"
	"github.com/tracechain/tracechain/internal/platform/db"
	"github.com/tracechain/tracechain/internal/products"
	"github.com/tracechain/tracechain/internal/security"
	securityhttp "github.com/tracechain/tracechain/internal/security/http"
	"github.com/tracechain/tracechain/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	pgSink := security.NewPGSink(dbpool)
	sinks := []security.Sink{pgSink}
	var shared securityhttp.SharedView

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, cluster security view disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		redisSink := security.NewRedisSink(redisClient, "")
		sinks = append(sinks, redisSink)
		shared = redisSink
	}

	dispatcher := security.NewDispatcher(logger, cfg.SecuritySinkBuffer, sinks...)
	recorder := security.NewRecorder(
		security.WithLogger(logger),
		security.WithRetention(cfg.SecurityRetention),
		security.WithForwarder(dispatcher),
	)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService)

	auditStore := audit.NewPGStore(dbpool)
	auditor := guard.NewAuditor(logger, auditStore)
	auditHandler := audithttp.NewHandler(logger, audit.NewService(auditStore))

	productsHandler := products.NewHandler(logger, products.NewRepository(dbpool), !cfg.IsProduction())
	securityHandler := securityhttp.NewHandler(logger, recorder, pgSink, shared)

	metrics := observability.NewMetrics(security.NewCollector(recorder, dispatcher))
	cleanup := jobs.NewSecurityCleanupJob(recorder, nil, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, recorder, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Recorder:        recorder,
		Tokens:          tokens,
		Auditor:         auditor,
		AuthHandler:     authHandler,
		ProductsHandler: productsHandler,
		SecurityHandler: securityHandler,
		AuditHandler:    auditHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	// The dispatcher outlives the server so events from in-flight requests
	// still reach the sinks.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		return cleanup.RunSweeper(gctx, cfg.SecuritySweepInterval)
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		defer stopDispatch()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		auditor.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
