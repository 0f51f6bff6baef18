package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/economics"
)

type EconomicsHandler struct {
	service *economics.Service
	logger  *zap.Logger
}

func NewEconomicsHandler(service *economics.Service, logger *zap.Logger) *EconomicsHandler {
	return &EconomicsHandler{
		service: service,
		logger:  logger,
	}
}

// GetUsage godoc
// @Summary Per-agent model usage since process start
// @Tags economics
// @Produce json
// @Router /usage [get]
// @Security Bearer
func (h *EconomicsHandler) GetUsage(c *gin.Context) {
	totals := h.service.Totals()

	var calls, failures, tokensIn, tokensOut int
	for _, u := range totals {
		calls += u.Calls
		failures += u.Failures
		tokensIn += u.TokensIn
		tokensOut += u.TokensOut
	}
	c.JSON(http.StatusOK, gin.H{
		"agents":     totals,
		"calls":      calls,
		"failures":   failures,
		"tokens_in":  tokensIn,
		"tokens_out": tokensOut,
	})
}
