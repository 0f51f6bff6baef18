package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/bootstrap"
	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/handlers"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/middleware"
	"github.com/axiom/sqlagent/internal/orchestration"
	"github.com/axiom/sqlagent/internal/relevance"
	"github.com/axiom/sqlagent/internal/telemetry"

	_ "github.com/axiom/sqlagent/docs" // Swagger docs
)

// @title sqlagent API
// @version 0.1.0
// @description Tiered natural-language to SQL generation with verification.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	ctx := context.Background()

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("sqlagent API starting...",
		zap.String("version", handlers.Version),
		zap.String("environment", cfg.Environment),
	)

	shutdownTelemetry, err := telemetry.InitTracer(ctx, "sqlagent-api")
	if err != nil {
		// collector might be down
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	services, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var temporalClient client.Client
	if c, err := orchestration.InitTemporalClient(cfg.TemporalHost, logger); err != nil {
		logger.Error("failed to connect to temporal, async runs disabled", zap.Error(err))
	} else {
		temporalClient = c
		defer c.Close()
		logger.Info("connected to temporal")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := handlers.NewHealthHandler(dependencies(services))
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)

	var runs handlers.RunStore
	if services.History != nil {
		runs = services.History
	}
	generationHandler := handlers.NewGenerationHandler(services.Controller, runs, temporalClient, cfg.WorkspaceConfig, logger)
	verificationHandler := handlers.NewVerificationHandler(
		services.Certificates,
		relevance.NewClassifier(relevance.DefaultConfig(), logger),
		logger,
	)
	speculationHandler := handlers.NewSpeculationHandler(services.Analyzer, logger)
	economicsHandler := handlers.NewEconomicsHandler(services.Economics, logger)

	auth := middleware.NewAuthenticator(cfg.JWTSecret, logger)
	limiter := middleware.NewRateLimiter(cfg.RequestsPerMinute)
	go pruneLimiter(ctx, limiter)

	v1 := router.Group("/api/v1")
	{
		// public so third parties can check a certificate they were handed
		v1.POST("/certificates/verify", verificationHandler.VerifyCertificate)

		protected := v1.Group("")
		protected.Use(auth.Middleware())
		{
			sql := protected.Group("/sql")
			{
				sql.POST("/generate",
					middleware.RequireRole(middleware.RoleAnalyst),
					middleware.RateLimitMiddleware(limiter),
					middleware.CircuitBreakerMiddleware(llm.NewCircuitBreaker()),
					generationHandler.Generate,
				)
				sql.POST("/sanitize", verificationHandler.Sanitize)
				sql.POST("/classify", verificationHandler.Classify)
			}

			protected.GET("/runs", generationHandler.ListRuns)
			protected.GET("/runs/:id", generationHandler.GetRun)
			protected.POST("/speculate", speculationHandler.AnalyzeQuestion)
			protected.GET("/usage", middleware.RequireRole(middleware.RoleAdmin), economicsHandler.GetUsage)
		}
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// tier escalation can take minutes
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}

func dependencies(s *bootstrap.Services) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"database": nil, "redis": nil, "nats": nil}
	if s.Postgres != nil {
		deps["database"] = s.Postgres
	}
	if s.Redis != nil {
		deps["redis"] = s.Redis
	}
	if s.Bus != nil {
		bus := s.Bus
		deps["nats"] = handlers.PingFunc(func(context.Context) error {
			if !bus.Healthy() {
				return errNATSDisconnected
			}
			return nil
		})
	}
	return deps
}

func pruneLimiter(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(30 * time.Minute)
		}
	}
}

var errNATSDisconnected = errors.New("nats disconnected")
