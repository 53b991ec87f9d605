package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	libdb "sessionexport/backend/libs/db"
	libredis "sessionexport/backend/libs/redis"
	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/clients"
	"sessionexport/backend/services/report-service/internal/config"
	httpserver "sessionexport/backend/services/report-service/internal/http"
	"sessionexport/backend/services/report-service/internal/http/handlers"
	"sessionexport/backend/services/report-service/internal/http/middleware"
	"sessionexport/backend/services/report-service/internal/progress"
	"sessionexport/backend/services/report-service/internal/ratelimit"
	"sessionexport/backend/services/report-service/internal/repository"
	"sessionexport/backend/services/report-service/internal/service"
)

// App wires report-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph. Postgres and Redis are optional and only dialled
// when configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	if cfg.Upstream.InsecureSkipVerify {
		logger.Warn("upstream TLS certificate verification is disabled",
			zap.String("upstream", cfg.Upstream.BaseURL))
	}
	httpClient := clients.NewUpstreamHTTPClient(cfg.UpstreamTimeout(), cfg.Upstream.InsecureSkipVerify)
	etrel := clients.NewEtrelClient(cfg.Upstream.BaseURL, httpClient, logger)

	hub := progress.NewHub()

	var (
		recorder service.RunRecorder
		lister   *handlers.ExportsHandlers
	)
	if cfg.Database.DSN != "" {
		sqlDB, err := libdb.OpenPostgres(ctx, cfg.Database.DSN, libdb.Options{})
		if err != nil {
			return nil, apperr.Configuration("connect database", err)
		}
		a.db = sqlDB
		runs := repository.NewExportRunRepository(sqlDB)
		if err := runs.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, apperr.Configuration("prepare export audit schema", err)
		}
		recorder = runs
		lister = handlers.NewExportsHandlers(runs, logger)
		logger.Info("export audit enabled")
	}

	var rateLimit func(http.Handler) http.Handler
	if cfg.Redis.Addr != "" && cfg.RateLimit.Requests > 0 {
		client, err := libredis.NewClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, apperr.Configuration("connect redis", err)
		}
		a.redisClient = client
		limiter := ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimitWindow())
		rateLimit = middleware.RateLimitMiddleware(limiter, logger)
		logger.Info("export rate limit enabled",
			zap.Int("requests", cfg.RateLimit.Requests),
			zap.Duration("window", cfg.RateLimitWindow()))
	}

	exportService := service.NewExportService(etrel, hub, recorder, logger)

	corsPolicy := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Export-ID"},
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		ReportHandlers: handlers.NewReportHandlers(exportService, handlers.ReportDefaults{
			Credentials: cfg.StaticCredentials(),
			UnitPrice:   cfg.Report.UnitPrice,
		}, logger),
		ExportsHandlers:     lister,
		ProgressHandler:     handlers.NewProgressHandler(hub, originChecker(corsPolicy), logger),
		HealthHandler:       handlers.NewHealthHandler(),
		AuthMiddleware:      middleware.AuthMiddleware(cfg.Auth.JWTSecret),
		RateLimitMiddleware: rateLimit,
	})

	a.server = httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		cfg.WriteTimeout(),
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		corsPolicy.Handler,
	)
	return a, nil
}

// originChecker applies the CORS origin list to websocket handshakes. Clients that send no
// Origin header are not browsers and pass.
func originChecker(policy *cors.Cors) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if r.Header.Get("Origin") == "" {
			return true
		}
		return policy.OriginAllowed(r)
	}
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
