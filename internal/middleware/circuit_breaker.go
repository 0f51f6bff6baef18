package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/axiom/sqlagent/internal/llm"
)

// CircuitBreakerMiddleware guards an expensive route with a breaker: server
// errors count as failures, and while the breaker is open requests are
// rejected before reaching the handler.
func CircuitBreakerMiddleware(cb *llm.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cb.Allow() {
			RespondErrorWithRetry(c, http.StatusServiceUnavailable, ErrCodeCircuitOpen,
				"SQL generation is temporarily unavailable due to repeated failures", int(cb.Timeout.Milliseconds()))
			c.Abort()
			return
		}
		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
	}
}
