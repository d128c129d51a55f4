package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
	"github.com/a2e-systems/a2e-exec/internal/engine"
	"github.com/a2e-systems/a2e-exec/internal/respond"
	"github.com/a2e-systems/a2e-exec/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// validationReport is the wire shape of a validate response, per the
// component's documented contract.
type validationReport struct {
	Valid    bool               `json:"valid"`
	Errors   int                `json:"errors"`
	Warnings int                `json:"warnings"`
	Issues   []validator.Issue  `json:"issues"`
}

func runValidation(deps Dependencies, level validator.Level, workflowJSONL, agent string) validationReport {
	v := validator.New(deps.Registry, deps.VaultLookup, deps.Authz, level)
	valid, issues := v.Validate(workflowJSONL, agent)

	report := validationReport{Valid: valid, Issues: issues}
	for _, issue := range issues {
		if issue.Severity == validator.SeverityError {
			report.Errors++
		} else {
			report.Warnings++
		}
	}
	return report
}

func levelFromQuery(c *gin.Context, fallback validator.Level) validator.Level {
	if raw := c.Query("level"); raw != "" {
		return validator.Level(raw)
	}
	return fallback
}

// handleValidateWorkflow validates a workflow without executing it.
func handleValidateWorkflow(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, deps.Shaper, apierrors.New(apierrors.CategoryValidation, "could not read request body"))
			return
		}

		level := levelFromQuery(c, deps.DefaultLevel)
		report := runValidation(deps, level, string(body), agentID(c))
		c.JSON(http.StatusOK, report)
	}
}

// handleExecuteWorkflow validates (unless skip_validation=true) and then
// executes a workflow, shaping the result per the ?format= override or the
// shaper's configured default.
func handleExecuteWorkflow(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := agentID(c)

		decision := deps.RateLimiter.Check(agent, "")
		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Remaining", "0")
			refusal := apierrors.New(apierrors.CategoryExecution, decision.Reason)
			refusal.StatusCode = http.StatusTooManyRequests
			writeError(c, deps.Shaper, refusal)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, deps.Shaper, apierrors.New(apierrors.CategoryValidation, "could not read request body"))
			return
		}
		workflowJSONL := string(body)

		if c.Query("skip_validation") != "true" {
			level := levelFromQuery(c, deps.DefaultLevel)
			report := runValidation(deps, level, workflowJSONL, agent)
			if !report.Valid {
				c.JSON(http.StatusBadRequest, report)
				return
			}
		}

		executionID := uuid.NewString()
		result, err := deps.Engine.Execute(c.Request.Context(), executionID, agent, workflowJSONL)
		if err != nil {
			writeError(c, deps.Shaper, err)
			return
		}

		format := respond.Format(c.Query("format"))
		c.JSON(http.StatusOK, shapeResult(deps.Shaper, result, workflowJSONL, format))
	}
}

// shapeResult converts the engine's per-operation account into the
// per-operation result map the response shaper expects, then delegates to
// the shaper for the success/partial/error envelope.
func shapeResult(shaper *respond.Shaper, result *engine.Result, workflowJSONL string, format respond.Format) map[string]any {
	wf := engine.ParseJSONL(workflowJSONL)

	resultsMap := make(map[string]any, len(result.Operations))
	failedMap := make(map[string]error, len(result.Operations))

	for _, op := range result.Operations {
		entry := map[string]any{
			"status":     op.Status,
			"kind":       op.Kind,
			"durationMs": op.DurationMs,
		}

		if declared, ok := wf.Get(op.OperationID); ok && result.DataModel != nil {
			if outputPath, _ := declared.Config["outputPath"].(string); outputPath != "" {
				if value, ok := result.DataModel.Get(outputPath); ok {
					entry["data"] = value
				}
			}
		}

		if op.Error != "" {
			entry["error"] = op.Error
			failedMap[op.OperationID] = apierrors.New(apierrors.CategoryExecution, op.Error).WithOperation(op.OperationID)
		}

		resultsMap[op.OperationID] = entry
	}

	switch result.Status {
	case "partial_success":
		successful := make(map[string]any, len(resultsMap)-len(failedMap))
		for id, v := range resultsMap {
			if _, failed := failedMap[id]; !failed {
				successful[id] = v
			}
		}
		return shaper.FormatPartialSuccess(result.ExecutionID, successful, failedMap)
	case "error":
		var firstErr error
		for _, err := range failedMap {
			firstErr = err
			break
		}
		if firstErr == nil {
			firstErr = apierrors.New(apierrors.CategoryExecution, "execution failed")
		}
		return shaper.FormatError(result.ExecutionID, firstErr, "", nil)
	default:
		return shaper.FormatSuccess(result.ExecutionID, resultsMap, format)
	}
}
