package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/database"
	"github.com/axiom/sqlagent/internal/economics"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/relevance"
	"github.com/axiom/sqlagent/internal/speculation"
	"github.com/axiom/sqlagent/internal/verification"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type generatorFunc func(ctx context.Context, in models.GenerationInput) (*models.Result, error)

func (f generatorFunc) Run(ctx context.Context, in models.GenerationInput) (*models.Result, error) {
	return f(ctx, in)
}

type memoryRuns map[uuid.UUID]models.RunRecord

func (m memoryRuns) Get(_ context.Context, id uuid.UUID) (*models.RunRecord, error) {
	rec, ok := m[id]
	if !ok {
		return nil, database.ErrRunNotFound
	}
	return &rec, nil
}

func (m memoryRuns) Recent(_ context.Context, workspaceID string, _ int) ([]models.RunRecord, error) {
	var out []models.RunRecord
	for _, rec := range m {
		if rec.WorkspaceID == workspaceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func generationRouter(gen Generator, runs RunStore) *gin.Engine {
	h := NewGenerationHandler(gen, runs, nil, "", zap.NewNop())
	r := gin.New()
	r.POST("/sql/generate", h.Generate)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs", h.ListRuns)
	return r
}

func TestGenerate(t *testing.T) {
	runID := uuid.New()
	gen := generatorFunc(func(_ context.Context, in models.GenerationInput) (*models.Result, error) {
		switch in.WorkspaceID {
		case "shop":
			return &models.Result{RunID: runID, SQL: "SELECT 1", Case: models.CaseAGold, Tier: models.TierBasic}, nil
		case "missing":
			return nil, fmt.Errorf("%w: missing", config.ErrWorkspaceNotFound)
		case "empty":
			return nil, &models.Failure{RunID: runID, Kind: models.FailurePoolUnavailable, Case: models.CaseDFailed, Reason: "no agents"}
		case "hard":
			return nil, &models.Failure{RunID: runID, Kind: models.FailureAllTiersExhausted, Case: models.CaseCFailed, Reason: "exhausted"}
		}
		return nil, errors.New("boom")
	})
	r := generationRouter(gen, nil)

	tests := []struct {
		name      string
		workspace string
		want      int
		contains  string
	}{
		{"accepted", "shop", http.StatusOK, `"case":"A-GOLD"`},
		{"unknown workspace", "missing", http.StatusNotFound, "WORKSPACE_NOT_FOUND"},
		{"no agents", "empty", http.StatusServiceUnavailable, "MODEL_UNAVAILABLE"},
		{"exhausted", "hard", http.StatusUnprocessableEntity, "all_tiers_exhausted"},
		{"unexpected", "other", http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/sql/generate", GenerateRequest{WorkspaceID: tt.workspace, Question: "top customers"})
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestGenerateValidatesRequest(t *testing.T) {
	called := false
	r := generationRouter(generatorFunc(func(context.Context, models.GenerationInput) (*models.Result, error) {
		called = true
		return nil, nil
	}), nil)

	w := doJSON(r, http.MethodPost, "/sql/generate", map[string]string{"question": "top customers"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/sql/generate", GenerateRequest{WorkspaceID: "shop", Question: "top", Async: true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "async without a Temporal client")
	assert.False(t, called)
}

func TestRuns(t *testing.T) {
	id := uuid.New()
	runs := memoryRuns{id: {RunID: id, WorkspaceID: "shop", Status: models.RunStatusSucceeded, SQL: "SELECT 1"}}
	r := generationRouter(nil, runs)

	w := doJSON(r, http.MethodGet, "/runs/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "SELECT 1", rec.SQL)

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/runs/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/runs/not-a-uuid", nil).Code)

	w = doJSON(r, http.MethodGet, "/runs?workspace_id=shop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = doJSON(r, http.MethodGet, "/runs?workspace_id=other", nil)
	assert.Contains(t, w.Body.String(), `"runs":[]`)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/runs", nil).Code)
}

func TestRunsWithoutHistory(t *testing.T) {
	r := generationRouter(nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(r, http.MethodGet, "/runs/"+uuid.NewString(), nil).Code)
}

func verificationRouter(t *testing.T) (*gin.Engine, *verification.CertificateService) {
	t.Helper()
	certs := verification.NewCertificateService("test-key")
	h := NewVerificationHandler(certs, relevance.NewClassifier(relevance.DefaultConfig(), zap.NewNop()), zap.NewNop())
	r := gin.New()
	r.POST("/sql/sanitize", h.Sanitize)
	r.POST("/sql/classify", h.Classify)
	r.POST("/certificates/verify", h.VerifyCertificate)
	return r, certs
}

func TestSanitize(t *testing.T) {
	r, _ := verificationRouter(t)

	w := doJSON(r, http.MethodPost, "/sql/sanitize", SanitizeRequest{SQL: "SELECT name FROM customers LIMIT 5", Dialect: "sqlserver"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp SanitizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.SQL, "TOP 5")
	assert.True(t, resp.Changed)

	w = doJSON(r, http.MethodPost, "/sql/sanitize", SanitizeRequest{SQL: "DELETE FROM customers", Dialect: "postgresql"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "read-only")

	w = doJSON(r, http.MethodPost, "/sql/sanitize", SanitizeRequest{SQL: "SELECT 1", Dialect: "cobol"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassify(t *testing.T) {
	r, _ := verificationRouter(t)
	w := doJSON(r, http.MethodPost, "/sql/classify", ClassifyRequest{
		Question:   "How many orders did each customer place?",
		SQL:        "SELECT customer_id, COUNT(*) FROM orders GROUP BY customer_id",
		Assertions: []string{"the weather was sunny"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res relevance.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []string{"the weather was sunny"}, res.Irrelevant)
}

func TestVerifyCertificate(t *testing.T) {
	r, certs := verificationRouter(t)
	cert, err := certs.Issue(uuid.New(), "SELECT 1", models.CaseAGold, models.TierBasic, "sqlite")
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/certificates/verify", VerifyCertificateRequest{Certificate: cert, SQL: "SELECT 1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	w = doJSON(r, http.MethodPost, "/certificates/verify", VerifyCertificateRequest{Certificate: cert, SQL: "SELECT 2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
}

func TestAnalyzeQuestion(t *testing.T) {
	h := NewSpeculationHandler(speculation.NewEngine(zap.NewNop()), zap.NewNop())
	r := gin.New()
	r.POST("/speculate", h.AnalyzeQuestion)

	w := doJSON(r, http.MethodPost, "/speculate", AnalyzeQuestionRequest{Question: "Show the top 5 customers by revenue"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "top_n")

	w = doJSON(r, http.MethodPost, "/speculate", AnalyzeQuestionRequest{Question: "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"traits":[]`)
}

func TestGetUsage(t *testing.T) {
	svc := economics.NewService(nil, zap.NewNop())
	ctx := context.Background()
	svc.RecordUsage(ctx, llm.CallRecord{Agent: "a", Usage: llm.Usage{TokensIn: 10, TokensOut: 5}, Latency: time.Millisecond})
	svc.RecordUsage(ctx, llm.CallRecord{Agent: "b", Usage: llm.Usage{TokensIn: 1}, Err: errors.New("down")})

	h := NewEconomicsHandler(svc, zap.NewNop())
	r := gin.New()
	r.GET("/usage", h.GetUsage)

	w := doJSON(r, http.MethodGet, "/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Calls    int `json:"calls"`
		Failures int `json:"failures"`
		TokensIn int `json:"tokens_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Calls)
	assert.Equal(t, 1, body.Failures)
	assert.Equal(t, 11, body.TokensIn)
}

func TestDeepHealth(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("refused") })

	r := gin.New()
	r.GET("/ok", NewHealthHandler(map[string]Pinger{"database": healthy, "redis": nil}).DeepHealth)
	r.GET("/degraded", NewHealthHandler(map[string]Pinger{"database": healthy, "nats": down}).DeepHealth)

	w := doJSON(r, http.MethodGet, "/ok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not configured", resp.Dependencies["redis"])

	w = doJSON(r, http.MethodGet, "/degraded", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy: refused")
}
