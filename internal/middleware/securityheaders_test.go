package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newSecurityHeadersRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestSecurityHeadersSetsHardeningHeaders(t *testing.T) {
	r := newSecurityHeadersRouter(SecurityHeaders())
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
	}
	for header, expected := range want {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}
	if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'self'") || !strings.Contains(csp, "nonce-") {
		t.Errorf("CSP = %q, want default-src 'self' and a nonce directive", csp)
	}
}

func TestSecurityHeadersRelaxedUsesSameOriginFraming(t *testing.T) {
	r := newSecurityHeadersRouter(SecurityHeadersRelaxed())
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want SAMEORIGIN", got)
	}
}

func TestSecurityHeadersNoncesAreUnique(t *testing.T) {
	r := newSecurityHeadersRouter(SecurityHeaders())

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		csp := w.Header().Get("Content-Security-Policy")
		nonce := extractNonce(csp)
		if nonce == "" {
			t.Fatalf("request %d: CSP has no nonce: %q", i, csp)
		}
		if seen[nonce] {
			t.Fatalf("nonce %q reused across requests", nonce)
		}
		seen[nonce] = true
	}
}

func TestSecurityHeadersSkipsCacheControlOnHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control on /health = %q, want unset", got)
	}
}

func extractNonce(csp string) string {
	const marker = "nonce-"
	i := strings.Index(csp, marker)
	if i < 0 {
		return ""
	}
	rest := csp[i+len(marker):]
	end := strings.Index(rest, "'")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
