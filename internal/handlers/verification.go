package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/dialect"
	"github.com/axiom/sqlagent/internal/middleware"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/relevance"
	"github.com/axiom/sqlagent/internal/verification"
)

// VerificationHandler exposes the deterministic checks: dialect
// sanitization, relevance classification and certificate verification.
type VerificationHandler struct {
	certificates *verification.CertificateService
	classifier   *relevance.Classifier
	logger       *zap.Logger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(certificates *verification.CertificateService, classifier *relevance.Classifier, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		certificates: certificates,
		classifier:   classifier,
		logger:       logger,
	}
}

// SanitizeRequest is the request body for sanitization
type SanitizeRequest struct {
	SQL     string `json:"sql" binding:"required"`
	Dialect string `json:"dialect" binding:"required"`
}

// SanitizeResponse is the rewritten statement
type SanitizeResponse struct {
	SQL     string `json:"sql"`
	Dialect string `json:"dialect"`
	Changed bool   `json:"changed"`
}

// Sanitize godoc
// @Summary Rewrite a read-only query for a dialect
// @Tags verification
// @Accept json
// @Produce json
// @Param request body SanitizeRequest true "statement"
// @Success 200 {object} SanitizeResponse
// @Router /sql/sanitize [post]
// @Security Bearer
func (h *VerificationHandler) Sanitize(c *gin.Context) {
	var req SanitizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}
	d, err := dialect.Parse(req.Dialect)
	if err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	out, err := dialect.Sanitize(req.SQL, d)
	switch {
	case errors.Is(err, dialect.ErrNotReadOnly):
		middleware.RespondErrorWithDetails(c, http.StatusUnprocessableEntity, middleware.ErrCodeBadRequest, "only single read-only queries are accepted", err.Error())
		return
	case err != nil:
		middleware.RespondErrorWithDetails(c, http.StatusUnprocessableEntity, middleware.ErrCodeBadRequest, "statement cannot be expressed in this dialect", err.Error())
		return
	}

	c.JSON(http.StatusOK, SanitizeResponse{SQL: out, Dialect: string(d), Changed: out != req.SQL})
}

// ClassifyRequest is the request body for relevance classification
type ClassifyRequest struct {
	Question       string   `json:"question" binding:"required"`
	SQL            string   `json:"sql" binding:"required"`
	Assertions     []string `json:"assertions" binding:"required,min=1"`
	SchemaLanguage string   `json:"schema_language"`
}

// Classify godoc
// @Summary Label evidence assertions as strict, weak or irrelevant
// @Tags verification
// @Accept json
// @Produce json
// @Param request body ClassifyRequest true "assertions"
// @Success 200 {object} relevance.Result
// @Router /sql/classify [post]
// @Security Bearer
func (h *VerificationHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}
	res := h.classifier.Classify(c.Request.Context(), relevance.Input{
		Question:       req.Question,
		SQL:            req.SQL,
		Assertions:     req.Assertions,
		SchemaLanguage: req.SchemaLanguage,
	})
	c.JSON(http.StatusOK, res)
}

// VerifyCertificateRequest is the request body for certificate checks
type VerifyCertificateRequest struct {
	Certificate *models.Certificate `json:"certificate" binding:"required"`
	SQL         string              `json:"sql" binding:"required"`
}

// VerifyCertificate godoc
// @Summary Check that a certificate was issued for a statement
// @Tags verification
// @Accept json
// @Produce json
// @Param request body VerifyCertificateRequest true "certificate and SQL"
// @Router /certificates/verify [post]
func (h *VerificationHandler) VerifyCertificate(c *gin.Context) {
	var req VerifyCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	if err := h.certificates.Verify(req.Certificate, req.SQL); err != nil {
		h.logger.Info("certificate rejected",
			zap.String("certificate_id", req.Certificate.ID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  true,
		"run_id": req.Certificate.RunID,
		"case":   req.Certificate.Case,
		"tier":   req.Certificate.Tier,
	})
}
