package httpapi

import (
	"net/http"

	"github.com/a2e-systems/a2e-exec/internal/validator"
	"github.com/gin-gonic/gin"
)

// handleSQLSearch delegates to the registry's SQL-catalog search.
func handleSQLSearch(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if !validator.BindAndValidate(c, &req) {
			return
		}
		results := deps.Registry.SearchSQL(c.Request.Context(), req.Query, req.k())
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// handleListSQL lists the SQL catalog, optionally filtered by database
// and/or category query params.
func handleListSQL(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		queries := deps.Registry.ListSQL(c.Query("database"), c.Query("category"))
		c.JSON(http.StatusOK, gin.H{"queries": queries})
	}
}

// handleGetSQL returns a single SQL catalog entry by id.
func handleGetSQL(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := deps.Registry.GetSQL(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown SQL query id"})
			return
		}
		c.JSON(http.StatusOK, q)
	}
}
