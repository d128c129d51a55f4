package httpapi

import (
	"net/http"
	"strconv"

	"github.com/a2e-systems/a2e-exec/internal/audit"
	"github.com/gin-gonic/gin"
)

const defaultExecutionListLimit = 50

// handleListExecutions returns the caller's own execution history, most
// recent first, optionally narrowed by workflowId/status query params.
func handleListExecutions(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Auditor == nil {
			c.JSON(http.StatusOK, gin.H{"executions": []audit.Entry{}})
			return
		}

		limit := defaultExecutionListLimit
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		entries := deps.Auditor.Query(audit.QueryFilter{
			AgentID:    agentID(c),
			WorkflowID: c.Query("workflowId"),
			Status:     c.Query("status"),
			Limit:      limit,
		})

		c.JSON(http.StatusOK, gin.H{"executions": entries})
	}
}

// handleGetExecution returns the reconstructed timeline for one execution
// id, restricted to entries the caller submitted.
func handleGetExecution(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if deps.Auditor == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown execution"})
			return
		}

		entries := deps.Auditor.GetDetails(id)
		owned := entries[:0:0]
		for _, e := range entries {
			if e.AgentID == agentID(c) {
				owned = append(owned, e)
			}
		}

		if len(owned) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown execution"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"executionId": id, "timeline": owned})
	}
}
