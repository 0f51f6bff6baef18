package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/database"
	"github.com/axiom/sqlagent/internal/economics"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/orchestration"
	"github.com/axiom/sqlagent/internal/speculation"
	"github.com/axiom/sqlagent/internal/telemetry"
	"github.com/axiom/sqlagent/internal/verification"
)

var generateShowUsage bool

var generateCmd = &cobra.Command{
	Use:   "generate <question>",
	Short: "Generate SQL for a question",
	Long: `Generate SQL for a natural-language question using the agents of the
workspace file. The run record is printed; the exit status is non-zero when
every tier failed.`,
	Example: `  sqlagent generate "How many orders were placed last week?"
  sqlagent generate --config shop.yaml -o json "top 5 customers by revenue"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, path, err := config.LoadWorkspace(cfgFile)
		if err != nil {
			return err
		}
		logger.Info("loaded workspace", zap.String("path", path), zap.String("id", ws.ID))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runGenerate(ctx, ws, strings.Join(args, " "))
	},
}

func init() {
	generateCmd.Flags().BoolVar(&generateShowUsage, "usage", false, "print per-agent model usage after the run")
}

// generateOutput is what the command prints
type generateOutput struct {
	Result  *models.Result         `json:"result,omitempty"`
	Failure *models.Failure        `json:"failure,omitempty"`
	Usage   []economics.AgentUsage `json:"usage,omitempty"`
}

func runGenerate(ctx context.Context, ws *config.Workspace, question string) error {
	usage := economics.NewService(nil, logger)
	factory := llm.NewFactory(logger)
	factory.OnUsage(usage.RecordUsage)

	executors := database.NewExecutors(nil, logger)
	defer executors.Close()

	ctrl, err := orchestration.NewController(orchestration.Deps{
		Agents:       factory,
		Executors:    executors,
		History:      telemetry.NewLogSink(logger),
		Certificates: verification.NewCertificateService(config.Load().CertSigningKey),
		Analyzer:     speculation.NewEngine(logger),
		Progress:     telemetry.NewLogProgress(logger),
	}, logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	res, runErr := ctrl.GenerateSQL(ctx, question, ws)

	out := generateOutput{Result: res}
	var failure *models.Failure
	if errors.As(runErr, &failure) {
		out.Failure = failure
	} else if runErr != nil {
		return runErr
	}
	if generateShowUsage {
		out.Usage = usage.Totals()
	}
	if err := render(out); err != nil {
		return err
	}
	if failure != nil {
		return fmt.Errorf("no candidate accepted: %s", failure.Kind)
	}
	return nil
}
