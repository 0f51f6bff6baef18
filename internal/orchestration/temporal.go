package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/models"
)

// TaskQueue is the Temporal task queue served by cmd/worker.
const TaskQueue = "sqlagent-runs"

// InitTemporalClient dials Temporal. The client is heavyweight: create one
// per process. Callers degrade gracefully on error.
func InitTemporalClient(address string, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort: address,
	})
	if err != nil {
		logger.Warn("Unable to create Temporal client", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("dialing temporal: %w", err)
	}
	return c, nil
}

// Activities wraps a Controller as Temporal activities
type Activities struct {
	Controller *Controller
}

// GenerateSQLActivity runs one question. Run-level failures are returned
// inside the output so Temporal does not retry them; only infrastructure
// errors fail the activity.
func (a *Activities) GenerateSQLActivity(ctx context.Context, in models.WorkflowInput) (models.WorkflowOutput, error) {
	var (
		res *models.Result
		err error
	)
	if in.WorkspacePath != "" {
		ws, werr := config.FileSource{Path: in.WorkspacePath}.Workspace(ctx, in.WorkspaceID)
		if werr != nil {
			return models.WorkflowOutput{}, temporal.NewNonRetryableApplicationError(werr.Error(), "WorkspaceError", werr)
		}
		res, err = a.Controller.GenerateSQL(ctx, in.Question, ws)
	} else {
		res, err = a.Controller.Run(ctx, models.GenerationInput{WorkspaceID: in.WorkspaceID, Question: in.Question})
	}

	var f *models.Failure
	switch {
	case errors.As(err, &f):
		return models.WorkflowOutput{Failure: f}, nil
	case err != nil:
		return models.WorkflowOutput{}, err
	}
	return models.WorkflowOutput{Result: res}, nil
}

// GenerateSQLWorkflow is the durable wrapper of a run.
func GenerateSQLWorkflow(ctx workflow.Context, in models.WorkflowInput) (models.WorkflowOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{"WorkspaceError"},
		},
	})
	workflow.GetLogger(ctx).Info("Starting SQL generation", "workspace_id", in.WorkspaceID, "run_id", in.RunID)

	var a *Activities
	var out models.WorkflowOutput
	err := workflow.ExecuteActivity(ctx, a.GenerateSQLActivity, in).Get(ctx, &out)
	return out, err
}

// RegisterWorker registers the workflow and activities on w.
func RegisterWorker(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(GenerateSQLWorkflow)
	w.RegisterActivity(a)
}

// StartRun starts a durable run and returns its handle.
func StartRun(ctx context.Context, c client.Client, in models.WorkflowInput) (client.WorkflowRun, error) {
	return c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "sqlagent-run-" + in.RunID,
		TaskQueue: TaskQueue,
	}, GenerateSQLWorkflow, in)
}
