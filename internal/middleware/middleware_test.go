package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthenticator("secret", zap.NewNop())
	r := gin.New()
	r.GET("/me", auth.Middleware(), func(c *gin.Context) {
		id, _ := GetUserID(c)
		role, _ := GetUserRole(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role})
	})
	r.GET("/admin", auth.Middleware(), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	token, err := auth.IssueToken("u-1", RoleAnalyst, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken("u-1", RoleAnalyst, -time.Hour)
	require.NoError(t, err)
	foreign, err := NewAuthenticator("other", zap.NewNop()).IssueToken("u-1", RoleAdmin, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid", "/me", "Bearer " + token, http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"no bearer prefix", "/me", token, http.StatusUnauthorized},
		{"expired", "/me", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "/me", "Bearer " + foreign, http.StatusUnauthorized},
		{"role too low", "/admin", "Bearer " + token, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"id":"u-1","role":"analyst"}`, w.Body.String())
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimitMiddleware(NewRateLimiter(2)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	first := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	third := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Contains(t, third.Body.String(), ErrCodeRateLimited)
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1)
	ok, _ := rl.Allow("a")
	require.True(t, ok)
	ok, _ = rl.Allow("a")
	require.False(t, ok)

	rl.Prune(-time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok, "pruned bucket starts full")
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	cb := llm.NewCircuitBreakerWithConfig(2, 1, time.Hour)
	fail := true
	r := gin.New()
	r.GET("/", CircuitBreakerMiddleware(cb), func(c *gin.Context) {
		if fail {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusInternalServerError, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	assert.Equal(t, llm.CircuitOpen, cb.State())

	fail = false
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), ErrCodeCircuitOpen)
}

func TestGenerationFailed(t *testing.T) {
	tests := []struct {
		kind models.FailureKind
		want int
		code string
	}{
		{models.FailurePoolUnavailable, http.StatusServiceUnavailable, ErrCodeModelUnavailable},
		{models.FailureAllTiersExhausted, http.StatusUnprocessableEntity, ErrCodeGenerationFailed},
		{models.FailureInternal, http.StatusInternalServerError, ErrCodeGenerationFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) {
				GenerationFailed(c, &models.Failure{Kind: tt.kind, Reason: "nope"})
			})
			w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	assert.Equal(t, "abc", serve(r, req).Header().Get(RequestIDHeader))
}
