// Package bootstrap connects the optional infrastructure of a process and
// assembles the generation controller on top of it.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/database"
	"github.com/axiom/sqlagent/internal/economics"
	"github.com/axiom/sqlagent/internal/eventbus"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/orchestration"
	"github.com/axiom/sqlagent/internal/speculation"
	"github.com/axiom/sqlagent/internal/telemetry"
	"github.com/axiom/sqlagent/internal/verification"
)

// Services are the long-lived collaborators of a server or worker process.
// Postgres, Redis and Bus are nil when their backing service is down.
type Services struct {
	Postgres *database.Postgres
	Redis    *database.Redis
	Bus      *eventbus.Bus

	History      *database.HistoryStore
	Economics    *economics.Service
	Factory      *llm.Factory
	Executors    *database.Executors
	Certificates *verification.CertificateService
	Analyzer     *speculation.Engine
	Controller   *orchestration.Controller

	logger *zap.Logger
}

// New connects to whatever infrastructure is reachable and builds the
// controller. Only a controller construction error is fatal.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	s := &Services{logger: logger}

	if cfg.DatabaseURL != "" {
		if err := database.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			logger.Error("failed to run migrations", zap.Error(err))
		}
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database, run history disabled", zap.Error(err))
		} else {
			s.Postgres = db
			s.History = database.NewHistoryStore(db, logger)
		}
	}

	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis, result cache disabled", zap.Error(err))
		} else {
			s.Redis = rdb
		}
	}

	if cfg.NATSURL != "" {
		bus, err := eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS, run events disabled", zap.Error(err))
		} else if err := eventbus.EnsureStream(bus.JetStream()); err != nil {
			logger.Error("failed to init JetStream stream", zap.Error(err))
			bus.Close()
		} else {
			s.Bus = bus
		}
	}

	var usage economics.UsageStore
	if s.Postgres != nil {
		usage = database.NewUsageStore(s.Postgres)
	}
	s.Economics = economics.NewService(usage, logger)

	s.Factory = llm.NewFactory(logger)
	s.Factory.OnUsage(s.Economics.RecordUsage)

	s.Executors = database.NewExecutors(nil, logger)
	if s.Postgres != nil && cfg.QueryMainDatabase {
		s.Executors = database.NewExecutors(database.NewPostgresExecutor(s.Postgres), logger)
	}

	s.Certificates = verification.NewCertificateService(cfg.CertSigningKey)
	s.Analyzer = speculation.NewEngine(logger)

	deps := orchestration.Deps{
		Workspaces:   config.FileSource{Path: cfg.WorkspaceConfig},
		Agents:       s.Factory,
		Executors:    s.Executors,
		History:      s.sinks(),
		Certificates: s.Certificates,
		Analyzer:     s.Analyzer,
		Progress:     telemetry.NewLogProgress(logger),
	}
	if s.Redis != nil {
		deps.Cache = database.NewResultCache(s.Redis, cfg.CacheTTL, logger)
	}

	ctrl, err := orchestration.NewController(deps, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building controller: %w", err)
	}
	s.Controller = ctrl
	return s, nil
}

func (s *Services) sinks() orchestration.HistorySink {
	sinks := orchestration.MultiSink{telemetry.NewLogSink(s.logger)}
	if s.History != nil {
		sinks = append(sinks, s.History)
	}
	if s.Bus != nil {
		sinks = append(sinks, eventbus.NewPublisher(s.Bus.JetStream(), s.logger))
	}
	return sinks
}

// Close waits for in-flight history writes and releases every connection.
func (s *Services) Close() {
	if s.Controller != nil {
		s.Controller.Close()
	}
	if s.Executors != nil {
		s.Executors.Close()
	}
	if s.Bus != nil {
		s.Bus.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if s.Postgres != nil {
		s.Postgres.Close()
	}
}
