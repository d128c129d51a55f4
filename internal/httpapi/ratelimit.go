package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleRateLimitStatus reports the caller's current window usage and
// remaining budget without consuming any of it.
func handleRateLimitStatus(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.RateLimiter.Status(agentID(c)))
	}
}
