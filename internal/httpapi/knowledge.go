package httpapi

import (
	"net/http"

	"github.com/a2e-systems/a2e-exec/internal/validator"
	"github.com/gin-gonic/gin"
)

type searchRequest struct {
	Query string `json:"query" validate:"required"`
	K     int    `json:"k"`
}

const defaultSearchK = 10

func (r searchRequest) k() int {
	if r.K <= 0 {
		return defaultSearchK
	}
	return r.K
}

// handleKnowledgeSearch delegates to the registry's API search (semantic
// collaborator when configured, deterministic keyword score otherwise).
func handleKnowledgeSearch(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if !validator.BindAndValidate(c, &req) {
			return
		}
		results := deps.Registry.SearchAPIs(c.Request.Context(), req.Query, req.k())
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// handleKnowledgeBases lists every registered API definition.
func handleKnowledgeBases(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"bases": deps.Registry.ListAPIs()})
	}
}
