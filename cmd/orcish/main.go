package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/198cad/orcish-dashboard/internal/acl"
	"github.com/198cad/orcish-dashboard/internal/app"
	"github.com/198cad/orcish-dashboard/internal/audit"
	audithttp "github.com/198cad/orcish-dashboard/internal/audit/http"
	"github.com/198cad/orcish-dashboard/internal/auth"
	"github.com/198cad/orcish-dashboard/internal/docver"
	"github.com/198cad/orcish-dashboard/internal/observability"
	"github.com/198cad/orcish-dashboard/internal/platform/cache"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/rbac"
	"github.com/198cad/orcish-dashboard/internal/roles"
	"github.com/198cad/orcish-dashboard/internal/shared"
	"github.com/198cad/orcish-dashboard/internal/users"
	"github.com/198cad/orcish-dashboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrate()
			return
		case "seed":
			runSeed()
			return
		case "serve":
			// fall through to the server below
		default:
			slog.Default().Error("unknown command", slog.String("command", os.Args[1]))
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "orcish_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	recorder := audit.NewRecorder()

	rolesRepo := roles.NewRepository()
	roleGraph := roles.NewGraph(rolesRepo)
	rolesService := roles.NewService(pool, roleGraph, recorder)

	hierarchy := acl.NewHierarchyRegistry()

	rbacRepo := rbac.NewRepository()
	catalog := rbac.NewCatalog(func(ctx context.Context) ([]rbac.Permission, error) {
		return rbacRepo.ListPermissions(ctx, pool)
	})
	resolver := rbac.NewResolver(pool, rbacRepo, roleGraph, hierarchy)
	rbacService := rbac.NewService(pool, rbacRepo, recorder, catalog)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger, Denials: metrics}

	usersRepo := users.NewRepository()
	usersService := users.NewService(pool, usersRepo, recorder)

	aclRepo := acl.NewRepository()
	aclEngine := acl.NewEngine(pool, aclRepo, recorder)

	docRepo := docver.NewRepository()
	versioner := docver.NewVersioner(pool, docRepo, recorder, metrics)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	verifier := auth.NewLocalVerifier(pool, usersRepo, logger)
	authHandler := auth.NewHandler(logger, verifier, recorder, pool, sessionManager)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		RBACMiddleware: rbacMiddleware,
		AuthHandler:    authHandler,
		UsersHandler:   users.NewHandler(logger, usersService, rbacMiddleware),
		RolesHandler:   roles.NewHandler(logger, rolesService, rbacMiddleware),
		RBACHandler:    rbac.NewHandler(logger, rbacService, resolver, rbacMiddleware),
		ACLHandler:     acl.NewHandler(logger, aclEngine, catalog, rbacMiddleware),
		AuditHandler:   audithttp.NewHandler(logger, auditService, jobsClient),
		DocHandler:     docver.NewHandler(logger, versioner, rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
