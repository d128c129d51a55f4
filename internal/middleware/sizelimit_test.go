package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newSizeLimitRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/test", mw, func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too large")
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestQuerySizeLimiterRejectsOversizedContentLength(t *testing.T) {
	r := newSizeLimitRouter(QuerySizeLimiter())

	body := bytes.Repeat([]byte("a"), int(MaxQueryPayloadSize)+1)
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestQuerySizeLimiterAllowsSmallBody(t *testing.T) {
	r := newSizeLimitRouter(QuerySizeLimiter())

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte(`{"query":"weather"}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

// A workflow JSONL submission is allowed well past the query limit, since
// it can carry many operationUpdate frames.
func TestWorkflowSubmissionSizeLimiterAllowsLargerBodyThanQueryLimiter(t *testing.T) {
	r := newSizeLimitRouter(WorkflowSubmissionSizeLimiter())

	body := bytes.Repeat([]byte("a"), int(MaxQueryPayloadSize)*2)
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestWorkflowSubmissionSizeLimiterRejectsOversizedContentLength(t *testing.T) {
	r := newSizeLimitRouter(WorkflowSubmissionSizeLimiter())

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(nil))
	req.ContentLength = MaxWorkflowSubmissionSize + 1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestRequestSizeLimiterSkipsGET(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/test", RequestSizeLimiter(1), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (GET has no body to limit)", w.Code)
	}
}
