package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/analysis"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/auth"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/cache"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/corpus"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/database"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/errors"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/middleware"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/monitoring"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/ratelimit"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/security"
)

// Version is reported by the health endpoint and the CLI. Overridable at
// build time via -ldflags.
var Version = "1.0.0"

// Server wires the analyzer, persistence, and middleware stack behind the
// HTTP API. Construct with New, serve with Run, release resources with Close.
type Server struct {
	config Config

	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	tracer  *monitoring.Tracer
	memory  *monitoring.MemoryMonitor
	alerts  *monitoring.AlertManager

	analyzer *analysis.Analyzer
	db       *database.DB
	repo     *database.Repository
	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter
	fetcher  *corpus.ChainFetcher
	tokens   *auth.TokenService

	cache       *cache.Cache
	security    *security.SecurityMiddleware
	compression *middleware.CompressionMiddleware

	alertCancel context.CancelFunc
}

// New builds a fully wired server from config. The model is loaded from
// cfg.ModelPath when the file exists; a missing file leaves the service up
// but answering 503 on analyze until the first train.
func New(cfg Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = security.DefaultSecurityConfig().AllowedOrigins
	}

	appLogger := monitoring.NewLogger()
	appLogger.SetLevel(cfg.SlogLevel())
	slog.SetDefault(appLogger.Logger)

	appMetrics := monitoring.NewMetrics()

	// Training holds the whole corpus in memory, so the GC threshold sits
	// well above the steady state of the serve path.
	memoryMonitor := monitoring.NewMemoryMonitor(5*time.Second, 256*1024*1024, appLogger)
	memoryMonitor.Start()

	monitoring.InitGlobalTracer("anomaly-detector", appLogger)

	alerts := monitoring.NewAlertManager(appLogger, appMetrics, memoryMonitor, 30*time.Second)
	for _, rule := range monitoring.DefaultAlertRules {
		alerts.AddRule(rule)
	}
	if cfg.AlertWebhook != "" {
		alerts.AddNotifier(monitoring.NewWebhookNotifier(cfg.AlertWebhook))
	}

	analyzer := analysis.NewAnalyzer(appLogger)
	if err := analyzer.EnsureModel(context.Background(), cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("failed to initialize model: %w", err)
	}

	db, err := database.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	redisClient, err := ratelimit.NewRedisClient(cfg.RedisURL)
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting falls back to in-memory", "error", err)
	}

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimitPerMin:    cfg.RateLimitRPM,
		TrainLimitPerMin: cfg.TrainLimitRPM,
		BurstMultiplier:  2,
	}, appMetrics)

	fetcher, err := corpus.NewChainFetcher(cfg.EthRPCURL, appMetrics)
	if err != nil {
		slog.Warn("Chain fetcher unavailable, training uses submitted records only", "error", err)
	}

	var tokens *auth.TokenService
	if cfg.AuthSecret != "" {
		tokens = auth.NewTokenService(cfg.AuthSecret)
	} else {
		slog.Warn("AUTH_SECRET not set, training endpoint accepts unauthenticated requests")
	}

	securityConfig := security.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = cfg.AllowedOrigins
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)
	securityMiddleware.Cleanup()

	s := &Server{
		config:      cfg,
		logger:      appLogger,
		metrics:     appMetrics,
		tracer:      monitoring.GetGlobalTracer(),
		memory:      memoryMonitor,
		alerts:      alerts,
		analyzer:    analyzer,
		db:          db,
		repo:        database.NewRepository(db),
		redis:       redisClient,
		limiter:     limiter,
		fetcher:     fetcher,
		tokens:      tokens,
		cache:       cache.NewCache(cfg.CacheTTL),
		security:    securityMiddleware,
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}

	alertCtx, cancel := context.WithCancel(context.Background())
	s.alertCancel = cancel
	go alerts.Start(alertCtx)

	return s, nil
}

// Router assembles the middleware chain and routes. Compression sits
// outermost so every later stage observes status codes through its buffered
// writer; monitoring and tracing come before error handling so failed
// requests are still counted and traced.
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(s.compression.Handler())
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.TracingMiddleware(s.tracer))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger))

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	r.Use(cors.New(cors.Config{
		AllowOrigins:  s.config.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}))

	r.Use(s.security.SecurityHeaders)
	r.Use(s.security.RequestTimeout)
	r.Use(s.security.ValidateContentType)
	r.Use(s.security.RateLimitByIP)
	r.Use(s.limiter.IPRateLimitMiddleware())

	r.Use(s.cache.Middleware(s.metrics))

	api := r.Group("/api")
	{
		api.POST("/analyze", s.security.ValidateAnalyzeRequest, s.handleAnalyze)
		api.GET("/analyses", s.handleAnalyses)
		api.GET("/model", s.handleModel)

		train := api.Group("/train")
		train.Use(s.limiter.EndpointRateLimitMiddleware("train", s.config.TrainLimitRPM))
		if s.tokens != nil {
			train.Use(auth.RequireToken(s.tokens))
		}
		train.POST("", s.handleTrain)
	}

	r.GET("/health", s.handleHealth)
	r.GET("/health/services", s.handleServiceHealth)
	r.GET("/metrics", s.handleMetrics)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to 30 seconds before closing resources.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: s.Router(),
	}

	go func() {
		slog.Info("Starting server", "port", s.config.Port, "model_path", s.config.ModelPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.Close()
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.Close()
	slog.Info("Server exited")
	return nil
}

// Close releases background monitors and connections. Safe after a failed
// Run; not safe to call twice.
func (s *Server) Close() {
	if s.alertCancel != nil {
		s.alertCancel()
	}
	s.memory.Stop()
	s.fetcher.Close()
	errors.SafeClose(s.db, "history database")
	errors.SafeClose(s.redis, "redis client")
}
