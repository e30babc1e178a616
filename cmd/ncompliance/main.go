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

	"github.com/ncompliance/ncompliance/internal/app"
	"github.com/ncompliance/ncompliance/internal/auth"
	"github.com/ncompliance/ncompliance/internal/commoncodes"
	"github.com/ncompliance/ncompliance/internal/dashboard"
	jobmetrics "github.com/ncompliance/ncompliance/internal/jobs"
	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/internal/observability"
	"github.com/ncompliance/ncompliance/internal/orgs"
	"github.com/ncompliance/ncompliance/internal/platform/cache"
	"github.com/ncompliance/ncompliance/internal/platform/db"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
	"github.com/ncompliance/ncompliance/internal/reports"
	"github.com/ncompliance/ncompliance/internal/shared"
	"github.com/ncompliance/ncompliance/internal/users"
	"github.com/ncompliance/ncompliance/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	loc := cfg.Location()

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	sessionManager := shared.NewSessionManager(redisClient, "nc_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)

	userService := users.NewService(users.NewRepository(pool), auditLogger)
	rbacMiddleware := rbac.Middleware{Directory: userService, Logger: logger}
	authService := auth.NewService(auth.NewRepository(pool))
	orgService := orgs.NewService(orgs.NewRepository(pool))

	regRepo := regulations.NewRepository(pool)
	ledger := regulations.NewLedger(regRepo, regulations.LedgerConfig{
		Storage:        regulations.NewLocalStorage(cfg.MediaRoot),
		Audit:          auditLogger,
		Approvals:      shared.NewApprovalRecorder(pool, logger),
		Logger:         logger,
		Location:       loc,
		MaxUploadBytes: cfg.UploadMaxBytes,
	})
	regService := regulations.NewService(regRepo, ledger)

	notifService := notifications.NewService(notifications.NewRepository(pool), notifications.Config{
		Cache:    notifications.NewUnreadCache(redisClient, 5*time.Minute),
		Mailer:   jobClient,
		Metrics:  jobMetrics,
		Logger:   logger,
		Location: loc,
	})
	ledger.SetNotifier(notifService)
	regService.SetReviewer(notifService)

	codeService := commoncodes.NewService(commoncodes.NewRepository(pool), commoncodes.NewCache(redisClient, cfg.CodeCacheTTL), auditLogger, logger)
	reportService := reports.NewService(reports.NewRepository(pool), reports.Config{Location: loc})
	groups := cfg.DashboardGroups
	if len(groups) == 0 {
		groups = dashboard.DefaultGroupOrder
	}
	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), dashboard.NewOrder(groups, dashboard.DefaultAliases))

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		Checks: map[string]app.Pinger{
			"postgres": pool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
		AuthHandler:          auth.NewHandler(logger, authService, sessionManager, csrfManager, rbacMiddleware),
		RegulationsHandler:   regulations.NewHandler(logger, regService, ledger, rbacMiddleware),
		NotificationsHandler: notifications.NewHandler(logger, notifService, rbacMiddleware),
		CodesHandler:         commoncodes.NewHandler(logger, codeService, rbacMiddleware),
		ReportsHandler:       reports.NewHandler(logger, reportService),
		DashboardHandler:     dashboard.NewHandler(logger, dashboardService),
		OrgsHandler:          orgs.NewHandler(logger, orgService, rbacMiddleware),
		UsersHandler:         users.NewHandler(logger, userService, rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", loc.String()))
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
