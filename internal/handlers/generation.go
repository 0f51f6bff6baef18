package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/database"
	"github.com/axiom/sqlagent/internal/middleware"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/orchestration"
)

var tracer = otel.Tracer("github.com/axiom/sqlagent/internal/handlers")

// Generator runs one NL->SQL request
type Generator interface {
	Run(ctx context.Context, in models.GenerationInput) (*models.Result, error)
}

// RunStore reads recorded runs
type RunStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.RunRecord, error)
	Recent(ctx context.Context, workspaceID string, limit int) ([]models.RunRecord, error)
}

// GenerationHandler handles SQL generation endpoints
type GenerationHandler struct {
	generator     Generator
	runs          RunStore
	temporal      client.Client
	workspacePath string
	logger        *zap.Logger
}

// NewGenerationHandler creates a new generation handler. runs and temporal
// may be nil; the endpoints that need them then answer 503.
func NewGenerationHandler(generator Generator, runs RunStore, temporal client.Client, workspacePath string, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		generator:     generator,
		runs:          runs,
		temporal:      temporal,
		workspacePath: workspacePath,
		logger:        logger,
	}
}

// GenerateRequest is the request body for a generation run
type GenerateRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required"`
	Question    string `json:"question" binding:"required,min=3"`
	// Async hands the run to the Temporal worker and returns immediately.
	Async bool `json:"async"`
}

// AsyncRunResponse is returned for runs handed to the worker
type AsyncRunResponse struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// Generate godoc
// @Summary Generate SQL for a question
// @Tags generation
// @Accept json
// @Produce json
// @Param request body GenerateRequest true "question and workspace"
// @Success 200 {object} models.Result
// @Success 202 {object} AsyncRunResponse
// @Failure 422 {object} middleware.APIError
// @Router /sql/generate [post]
// @Security Bearer
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "GenerateSQL")
	defer span.End()
	span.SetAttributes(attribute.String("workspace_id", req.WorkspaceID), attribute.Bool("async", req.Async))

	if req.Async {
		h.startAsync(ctx, c, req)
		return
	}

	res, err := h.generator.Run(ctx, models.GenerationInput{WorkspaceID: req.WorkspaceID, Question: req.Question})
	if err != nil {
		h.respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *GenerationHandler) startAsync(ctx context.Context, c *gin.Context, req GenerateRequest) {
	if h.temporal == nil {
		middleware.RespondError(c, http.StatusServiceUnavailable, middleware.ErrCodeInternalError, "durable runs are not configured")
		return
	}
	runID := uuid.NewString()
	run, err := orchestration.StartRun(ctx, h.temporal, models.WorkflowInput{
		RunID:         runID,
		WorkspaceID:   req.WorkspaceID,
		WorkspacePath: h.workspacePath,
		Question:      req.Question,
	})
	if err != nil {
		h.logger.Error("failed to start workflow", zap.Error(err))
		middleware.InternalError(c, "failed to start run")
		return
	}
	c.JSON(http.StatusAccepted, AsyncRunResponse{
		RunID:      runID,
		WorkflowID: run.GetID(),
		Status:     "running",
	})
}

func (h *GenerationHandler) respondRunError(c *gin.Context, err error) {
	var failure *models.Failure
	switch {
	case errors.As(err, &failure):
		h.logger.Info("generation failed",
			zap.String("run_id", failure.RunID.String()),
			zap.String("kind", string(failure.Kind)),
			zap.String("case", string(failure.Case)),
		)
		middleware.GenerationFailed(c, failure)
	case errors.Is(err, config.ErrWorkspaceNotFound):
		middleware.RespondError(c, http.StatusNotFound, middleware.ErrCodeWorkspaceNotFound, err.Error())
	default:
		h.logger.Error("generation error", zap.Error(err))
		middleware.InternalError(c, "generation failed")
	}
}

// GetRun godoc
// @Summary Fetch a recorded run
// @Tags generation
// @Produce json
// @Param id path string true "run ID"
// @Success 200 {object} models.RunRecord
// @Router /runs/{id} [get]
// @Security Bearer
func (h *GenerationHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.BadRequest(c, "invalid run ID")
		return
	}
	if h.runs == nil {
		middleware.RespondError(c, http.StatusServiceUnavailable, middleware.ErrCodeDatabaseError, "run history is not configured")
		return
	}

	rec, err := h.runs.Get(c.Request.Context(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		middleware.NotFound(c, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load run", zap.String("run_id", id.String()), zap.Error(err))
		middleware.RespondError(c, http.StatusInternalServerError, middleware.ErrCodeDatabaseError, "failed to load run")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListRuns godoc
// @Summary List recent runs of a workspace
// @Tags generation
// @Produce json
// @Param workspace_id query string true "workspace"
// @Param limit query int false "max runs"
// @Router /runs [get]
// @Security Bearer
func (h *GenerationHandler) ListRuns(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		middleware.BadRequest(c, "workspace_id is required")
		return
	}
	if h.runs == nil {
		middleware.RespondError(c, http.StatusServiceUnavailable, middleware.ErrCodeDatabaseError, "run history is not configured")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.runs.Recent(c.Request.Context(), workspaceID, limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		middleware.RespondError(c, http.StatusInternalServerError, middleware.ErrCodeDatabaseError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}
