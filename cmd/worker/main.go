package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/bootstrap"
	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/orchestration"
	"github.com/axiom/sqlagent/internal/telemetry"
)

func main() {
	ctx := context.Background()

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	shutdownTelemetry, err := telemetry.InitTracer(ctx, "sqlagent-worker")
	if err != nil {
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer shutdownTelemetry(ctx)
	}

	services, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	c, err := orchestration.InitTemporalClient(cfg.TemporalHost, logger)
	if err != nil {
		logger.Fatal("unable to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	w := worker.New(c, orchestration.TaskQueue, worker.Options{
		// each activity fans out to several model backends
		MaxConcurrentActivityExecutionSize: 4,
	})
	orchestration.RegisterWorker(w, &orchestration.Activities{Controller: services.Controller})

	logger.Info("worker started", zap.String("task_queue", orchestration.TaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("unable to start worker", zap.Error(err))
	}
}
