package main

import (
	// Standard library
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/studysphere/studysphere/cmd/server/internal/api"
	"github.com/studysphere/studysphere/cmd/server/internal/config"
	"github.com/studysphere/studysphere/cmd/server/internal/middleware"
	"github.com/studysphere/studysphere/cmd/server/internal/roadmapgen"
	"github.com/studysphere/studysphere/cmd/server/internal/scheduler"
	"github.com/studysphere/studysphere/cmd/server/internal/services"
	"github.com/studysphere/studysphere/cmd/server/internal/storage"
	"github.com/studysphere/studysphere/cmd/server/internal/util"
	"github.com/studysphere/studysphere/pkg/logger"
)

func main() {
	sweepOnce := flag.Bool("sweep-once", false, "run one backlog sweep and exit")
	flag.Parse()
	os.Exit(run(*sweepOnce))
}

// run 启动服务或执行一次巡检，返回进程退出码
func run(sweepOnce bool) int {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		WithSource:  !cfg.IsProduction(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	appLogger := logInstance.With("component", "web-server")

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		return 1
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
	appLogger.Debug(cfg.PrintConfig())

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	repo, err := storage.Open(startCtx, cfg.Storage)
	startCancel()
	if err != nil {
		appLogger.Error("failed to open roadmap storage", "driver", cfg.Storage.Driver, "error", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(closeCtx); err != nil {
			appLogger.Warn("storage close failed", "error", err)
		}
	}()

	clock := util.SystemClock{Location: cfg.Location()}
	store := services.NewRoadmapStore(repo, clock, logInstance)
	processor := services.NewBacklogProcessor(store, clock, cfg.Scheduler.Workers, logInstance)

	lease, closeLease := newLease(cfg.Scheduler, appLogger)
	defer closeLease()
	sweeper := scheduler.New(processor, lease, cfg.Scheduler.Schedule, cfg.Location(), logInstance)

	if sweepOnce {
		return runSweepOnce(sweeper, appLogger)
	}

	if cfg.AI.APIKey == "" {
		appLogger.Warn("AI_API_KEY not set, roadmap generation requests will fail")
	}
	chat := roadmapgen.NewChatClient(roadmapgen.ChatClientConfig{
		BaseURL:  cfg.AI.BaseURL,
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.Model,
		AppTitle: "StudySphere",
	})
	generator := roadmapgen.NewGenerator(chat, roadmapgen.Options{
		Timeout:       cfg.AI.Timeout,
		MaxConcurrent: cfg.AI.MaxConcurrent,
		Logger:        logInstance,
	})
	roadmapService := services.NewRoadmapService(generator, store, processor, clock, logInstance)
	appLogger.Info("roadmap service ready", "model", cfg.AI.Model)

	if cfg.Scheduler.Enabled {
		if err := sweeper.Start(); err != nil {
			appLogger.Error("failed to start backlog scheduler", "error", err)
			return 1
		}
		defer sweeper.Stop()
	} else {
		appLogger.Info("backlog scheduler disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logInstance))
	r.Use(middleware.CORS(cfg.Security.CORSAllowedOrigins))

	// Health check endpoints (no authentication required)
	startTime := time.Now()
	r.GET("/health", healthCheckHandler(cfg, startTime))
	r.GET("/readiness", readinessCheckHandler(store))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Authenticate(middleware.AuthConfig{
		JWTSecret:   cfg.Security.JWTSecret,
		AllowHeader: !cfg.IsProduction(),
	}, logInstance))
	api.NewRoadmapHandler(roadmapService).RegisterRoutes(apiGroup)

	if cfg.Security.JWTSecret == "" {
		appLogger.Warn("AUTH_JWT_SECRET not set, accepting X-User-ID header")
	}

	// Create HTTP server with graceful shutdown
	serverAddr := cfg.GetServerAddr()
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("server starting", "addr", serverAddr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		return 1
	}
	appLogger.Info("server shutdown complete")
	return 0
}

// newLease 配置了 Redis 时使用分布式租约，否则使用进程内租约
func newLease(cfg config.SchedulerConfig, log *slog.Logger) (scheduler.Lease, func()) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return scheduler.NewLocalLease(), func() {}
	}
	lease, err := scheduler.NewRedisLease(context.Background(), cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis lease unavailable, falling back to in-process lease", "addr", cfg.RedisAddr, "error", err)
		return scheduler.NewLocalLease(), func() {}
	}
	log.Info("redis sweep lease ready", "addr", cfg.RedisAddr)
	return lease, func() { _ = lease.Close() }
}

// runSweepOnce 执行一次巡检，返回进程退出码
func runSweepOnce(s *scheduler.Scheduler, log *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := s.RunOnce(ctx, "manual")
	if err != nil {
		log.Error("backlog sweep failed", "error", err)
		return 1
	}
	if res.Skipped {
		log.Info("backlog sweep skipped, another replica holds the lease")
		return 0
	}
	if res.Report.Failed > 0 {
		return 2
	}
	return 0
}

// HealthCheckResponse represents the response from the health check endpoint
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
	Env       string    `json:"env"`
}

// ReadinessCheckResponse represents the response from the readiness check endpoint
type ReadinessCheckResponse struct {
	Ready     bool             `json:"ready"`
	Checks    []ReadinessCheck `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// ReadinessCheck represents a single readiness check
type ReadinessCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok" or "fail"
	Error  string `json:"error,omitempty"`
}

// healthCheckHandler returns the liveness probe handler
func healthCheckHandler(cfg *config.Config, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthCheckResponse{
			Status:    "healthy",
			Service:   "studysphere-roadmap",
			Version:   "1.0.0",
			Uptime:    time.Since(startTime).String(),
			Timestamp: time.Now(),
			Env:       cfg.Server.Env,
		})
	}
}

// pinger 可探活的依赖
type pinger interface {
	Ping(ctx context.Context) error
}

// readinessCheckHandler returns the readiness probe handler
func readinessCheckHandler(store pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		storageCheck := ReadinessCheck{Name: "storage", Status: "ok"}
		if err := store.Ping(ctx); err != nil {
			storageCheck.Status = "fail"
			storageCheck.Error = err.Error()
		}

		response := ReadinessCheckResponse{
			Ready:     storageCheck.Status == "ok",
			Checks:    []ReadinessCheck{storageCheck},
			Timestamp: time.Now(),
		}

		httpStatus := http.StatusOK
		if !response.Ready {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, response)
	}
}
