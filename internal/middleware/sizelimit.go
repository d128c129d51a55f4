package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Request size ceilings. A2E's largest request bodies are workflow JSONL
// submissions to /workflows/validate and /workflows/execute, which can carry
// many operationUpdate frames; every other route takes a small, fixed-shape
// JSON query. There is no file-upload surface in this API.
const (
	// MaxRequestBodySize is the default ceiling applied to the whole router.
	MaxRequestBodySize int64 = 10 * 1024 * 1024 // 10 MB

	// MaxWorkflowSubmissionSize is the ceiling for a workflow JSONL body
	// (one operationUpdate/beginExecution frame per line).
	MaxWorkflowSubmissionSize int64 = 8 * 1024 * 1024 // 8 MB

	// MaxQueryPayloadSize is the ceiling for the small fixed-shape JSON
	// bodies accepted by the knowledge/SQL search endpoints.
	MaxQueryPayloadSize int64 = 256 * 1024 // 256 KB
)

// RequestSizeLimiter rejects a request whose declared Content-Length exceeds
// maxSize, and wraps the body in a LimitReader so a lying Content-Length
// can't be used to smuggle a larger payload past the check.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":       "Request entity too large",
				"message":     "Request body exceeds maximum allowed size",
				"max_size_mb": float64(maxSize) / (1024 * 1024),
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// WorkflowSubmissionSizeLimiter bounds a workflow JSONL body.
func WorkflowSubmissionSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxWorkflowSubmissionSize)
}

// QuerySizeLimiter bounds the small JSON bodies the search endpoints accept.
func QuerySizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxQueryPayloadSize)
}

// DefaultSizeLimiter uses the router-wide default ceiling.
func DefaultSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxRequestBodySize)
}
