// Package respond implements the response shaper (component C8): it takes
// the workflow engine's raw per-operation results and formats them into
// one of three agent-facing payload shapes, sanitizing error text and
// extracting only the fields an agent is likely to act on.
package respond

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
)

// Format selects how much detail a formatted response carries.
type Format string

const (
	FormatMinimal Format = "minimal"
	FormatSummary Format = "summary"
	FormatFull    Format = "full"
)

// Shaper formats execution results for delivery to an agent.
type Shaper struct {
	Default Format
}

// New builds a Shaper defaulting to FormatSummary unless overridden.
func New(format Format) *Shaper {
	if format == "" {
		format = FormatSummary
	}
	return &Shaper{Default: format}
}

func (s *Shaper) formatFor(override Format) Format {
	if override != "" {
		return override
	}
	return s.Default
}

// FormatSuccess shapes a fully successful execution's results.
func (s *Shaper) FormatSuccess(executionID string, results map[string]any, override Format) map[string]any {
	switch s.formatFor(override) {
	case FormatMinimal:
		return s.formatMinimal(results)
	case FormatFull:
		return s.formatFull(executionID, results)
	default:
		return s.formatSummary(executionID, results)
	}
}

func (s *Shaper) formatMinimal(results map[string]any) map[string]any {
	data := map[string]any{}
	for opID, result := range results {
		obj, ok := result.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := obj["data"]; ok {
			data[opID] = v
			continue
		}
		if v, ok := obj["items"]; ok {
			data[opID] = v
			continue
		}
		relevant := map[string]any{}
		for _, k := range []string{"id", "name", "value", "result", "output"} {
			if v, ok := obj[k]; ok && v != nil {
				relevant[k] = v
			}
		}
		if len(relevant) > 0 {
			data[opID] = relevant
		}
	}
	return map[string]any{"status": "success", "data": data}
}

func (s *Shaper) formatSummary(executionID string, results map[string]any) map[string]any {
	operations := map[string]any{}
	data := map[string]any{}

	for opID, result := range results {
		opInfo := map[string]any{"status": "success"}
		if obj, ok := result.(map[string]any); ok {
			if _, hasErr := obj["error"]; hasErr {
				opInfo["status"] = "failed"
			}
			if useful := extractUsefulFields(result, 3, 0); useful != nil {
				data[opID] = useful
			}
			if v, ok := obj["count"]; ok {
				opInfo["count"] = v
			}
			if v, ok := obj["durationMs"]; ok {
				opInfo["durationMs"] = v
			}
		}
		operations[opID] = opInfo
	}

	return map[string]any{
		"status":      "success",
		"executionId": executionID,
		"operations":  operations,
		"data":        data,
	}
}

func (s *Shaper) formatFull(executionID string, results map[string]any) map[string]any {
	return map[string]any{
		"status":      "success",
		"executionId": executionID,
		"results":     results,
	}
}

var usefulKeys = map[string]bool{
	"id": true, "name": true, "title": true, "value": true, "result": true,
	"output": true, "data": true, "items": true, "results": true, "count": true,
	"total": true, "status": true, "message": true, "url": true, "path": true,
}

// extractUsefulFields filters arbitrary result data down to fields an agent
// is likely to need, descending at most maxDepth levels and keeping only
// short scalar fields and small arrays so one noisy operation result can't
// dominate a summary response.
func extractUsefulFields(data any, maxDepth, depth int) any {
	if depth >= maxDepth {
		return nil
	}

	switch t := data.(type) {
	case map[string]any:
		filtered := map[string]any{}
		for k, v := range t {
			if usefulKeys[strings.ToLower(k)] {
				if nested := extractUsefulFields(v, maxDepth, depth+1); nested != nil {
					filtered[k] = nested
				}
				continue
			}
			switch val := v.(type) {
			case string:
				if len(val) < 100 {
					filtered[k] = val
				}
			case float64, int, bool:
				filtered[k] = val
			case []any:
				if len(val) <= 10 {
					items := make([]any, 0, len(val))
					for _, item := range val {
						items = append(items, extractUsefulFields(item, maxDepth, depth+1))
					}
					filtered[k] = items
				}
			}
		}
		if len(filtered) == 0 {
			return nil
		}
		return filtered
	case []any:
		limit := len(t)
		if limit > 50 {
			limit = 50
		}
		out := make([]any, 0, limit)
		for _, item := range t[:limit] {
			out = append(out, extractUsefulFields(item, maxDepth, depth+1))
		}
		return out
	default:
		return data
	}
}

// FormatPartialSuccess shapes a run where some operations failed.
func (s *Shaper) FormatPartialSuccess(executionID string, successful map[string]any, failed map[string]error) map[string]any {
	failedOps := map[string]any{}
	for opID, err := range failed {
		failedOps[opID] = s.FormatError(executionID, err, opID, nil)["error"]
	}

	return map[string]any{
		"status":      "partial_success",
		"executionId": executionID,
		"successful": map[string]any{
			"count":      len(successful),
			"operations": successful,
		},
		"failed": map[string]any{
			"count":      len(failed),
			"operations": failedOps,
		},
	}
}

// ErrorContext carries the extra fields FormatError can fold into a
// structured error's context block.
type ErrorContext struct {
	OperationType string
	URL           string
	StatusCode    int
	Method        string
	Timeout       string
	Retries       int
	ResponseBody  string
}

var pathPattern = regexp.MustCompile(`/\S+`)

// sanitizeErrorMessage strips filesystem-path-shaped fragments, collapses
// multi-line text to its first few lines, and caps overall length so a
// raw Go error (which may embed a stack-shaped wrapped-error chain) never
// reaches the agent verbatim.
func sanitizeErrorMessage(message string) string {
	message = pathPattern.ReplaceAllString(message, "[path]")

	if strings.Contains(message, "\n") {
		lines := strings.Split(message, "\n")
		if len(lines) > 3 {
			lines = lines[:3]
		}
		message = strings.Join(lines, "\n")
	}

	const maxLen = 500
	if len(message) > maxLen {
		message = message[:maxLen] + "..."
	}
	return message
}

// FormatError shapes a single failure into an agent-facing error payload,
// attaching category-driven suggestions from apierrors.Suggestions when the
// error carries a structured category.
func (s *Shaper) FormatError(executionID string, err error, operationID string, ctx *ErrorContext) map[string]any {
	category := string(apierrors.CategoryUnknown)
	message := ""
	if err != nil {
		message = err.Error()
	}

	var structured *apierrors.StructuredError
	if se, ok := err.(*apierrors.StructuredError); ok {
		structured = se
		category = string(se.Category)
		message = se.Message
		if se.Details != "" {
			message = fmt.Sprintf("%s: %s", se.Message, se.Details)
		}
	}

	errBody := map[string]any{
		"type":        category,
		"message":     sanitizeErrorMessage(message),
		"operationId": operationID,
	}

	if ctx != nil {
		if relevant := extractRelevantContext(ctx); len(relevant) > 0 {
			errBody["context"] = relevant
		}
	}

	suggestions := suggestionsFor(category, structured)
	if len(suggestions) > 0 {
		errBody["suggestions"] = suggestions
	}

	return map[string]any{
		"status":      "error",
		"executionId": executionID,
		"error":       errBody,
	}
}

func extractRelevantContext(ctx *ErrorContext) map[string]any {
	relevant := map[string]any{}
	if ctx.OperationType != "" {
		relevant["operationType"] = ctx.OperationType
	}
	if ctx.URL != "" {
		if parsed, err := url.Parse(ctx.URL); err == nil {
			relevant["domain"] = parsed.Host
		}
	}
	if ctx.StatusCode != 0 {
		relevant["statusCode"] = ctx.StatusCode
	}
	if ctx.Method != "" {
		relevant["method"] = ctx.Method
	}
	if ctx.Timeout != "" {
		relevant["timeout"] = ctx.Timeout
	}
	if ctx.Retries != 0 {
		relevant["retries"] = ctx.Retries
	}
	if ctx.ResponseBody != "" {
		preview := ctx.ResponseBody
		if len(preview) > 200 {
			preview = preview[:200]
		}
		relevant["responsePreview"] = preview
	}
	return relevant
}

func suggestionsFor(category string, structured *apierrors.StructuredError) []string {
	cat := apierrors.Category(category)
	suggestions := append([]string{}, apierrors.Suggestions[cat]...)
	if cat == apierrors.CategoryAPIError && structured != nil && structured.HTTPStatus != 0 {
		suggestions = append(suggestions, apierrors.StatusBucketSuggestions(structured.HTTPStatus)...)
	}
	return suggestions
}
