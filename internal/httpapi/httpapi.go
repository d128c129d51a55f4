// Package httpapi wires the agent-facing HTTP surface: authentication,
// capability projection, workflow validation/execution, execution history,
// knowledge/SQL-catalog search, and rate-limit status. Every handler is a
// thin adapter over the component packages (registry, vault, authz,
// validator, engine, controls, audit, respond) — it never re-implements
// their semantics.
package httpapi

import (
	"github.com/a2e-systems/a2e-exec/internal/audit"
	"github.com/a2e-systems/a2e-exec/internal/authz"
	"github.com/a2e-systems/a2e-exec/internal/controls"
	"github.com/a2e-systems/a2e-exec/internal/engine"
	"github.com/a2e-systems/a2e-exec/internal/middleware"
	"github.com/a2e-systems/a2e-exec/internal/registry"
	"github.com/a2e-systems/a2e-exec/internal/respond"
	"github.com/a2e-systems/a2e-exec/internal/validator"
	"github.com/a2e-systems/a2e-exec/internal/vault"
	"github.com/gin-gonic/gin"
)

// Dependencies collects every collaborator a handler may need. All fields
// are required except Auditor, which may be nil (the execution list is then
// empty and execution details return 404).
type Dependencies struct {
	Registry     *registry.Registry
	Vault        *vault.Vault
	VaultLookup  validator.VaultMetadataLookup
	Authz        *authz.Store
	Engine       *engine.Engine
	RateLimiter  *controls.RateLimiter
	Auditor      *audit.Journal
	Shaper       *respond.Shaper
	DefaultLevel validator.Level
}

// NewRouter builds the gin engine and registers every route. Callers are
// expected to have already installed the generic middleware chain
// (request id, logging, security headers, size limits, compression,
// per-IP rate limiting) ahead of calling this.
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handleHealth)

	v1 := r.Group("/api/v1")
	v1.Use(AgentAuth(deps.Authz, deps.Shaper))
	{
		v1.GET("/capabilities", handleCapabilities(deps))

		v1.POST("/workflows/validate", middleware.WorkflowSubmissionSizeLimiter(), handleValidateWorkflow(deps))
		v1.POST("/workflows/execute", middleware.WorkflowSubmissionSizeLimiter(), handleExecuteWorkflow(deps))

		v1.GET("/executions", handleListExecutions(deps))
		v1.GET("/executions/:id", handleGetExecution(deps))

		v1.POST("/knowledge/search", middleware.QuerySizeLimiter(), handleKnowledgeSearch(deps))
		v1.GET("/knowledge/bases", handleKnowledgeBases(deps))

		v1.POST("/sql-queries/search", middleware.QuerySizeLimiter(), handleSQLSearch(deps))
		v1.GET("/sql-queries", handleListSQL(deps))
		v1.GET("/sql-queries/:id", handleGetSQL(deps))

		v1.GET("/rate-limit/status", handleRateLimitStatus(deps))
	}

	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
