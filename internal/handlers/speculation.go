package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/middleware"
	"github.com/axiom/sqlagent/internal/speculation"
)

type SpeculationHandler struct {
	engine *speculation.Engine
	logger *zap.Logger
}

func NewSpeculationHandler(engine *speculation.Engine, logger *zap.Logger) *SpeculationHandler {
	return &SpeculationHandler{
		engine: engine,
		logger: logger,
	}
}

type AnalyzeQuestionRequest struct {
	Question string `json:"question" binding:"required"`
}

// AnalyzeQuestion godoc
// @Summary Detect question traits that shape the generated SQL
// @Tags speculation
// @Accept json
// @Produce json
// @Param request body AnalyzeQuestionRequest true "question"
// @Router /speculate [post]
// @Security Bearer
func (h *SpeculationHandler) AnalyzeQuestion(c *gin.Context) {
	var req AnalyzeQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	traits := h.engine.Analyze(c.Request.Context(), req.Question)
	if traits == nil {
		traits = []speculation.Trait{}
	}
	c.JSON(http.StatusOK, gin.H{
		"traits": traits,
		"hints":  speculation.Hints(traits),
	})
}
