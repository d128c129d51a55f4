package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a2e-systems/a2e-exec/internal/authz"
	"github.com/a2e-systems/a2e-exec/internal/controls"
	"github.com/a2e-systems/a2e-exec/internal/engine"
	"github.com/a2e-systems/a2e-exec/internal/registry"
	"github.com/a2e-systems/a2e-exec/internal/respond"
	"github.com/a2e-systems/a2e-exec/internal/search"
	"github.com/a2e-systems/a2e-exec/internal/storage"
	"github.com/a2e-systems/a2e-exec/internal/validator"
	"github.com/a2e-systems/a2e-exec/internal/vault"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testFixture struct {
	router *gin.Engine
	apiKey string
}

func newFixture(t *testing.T, rateConfig controls.RateLimitConfig) testFixture {
	t.Helper()
	dir := t.TempDir()

	v, err := vault.New("0123456789abcdef0123456789abcdef", filepath.Join(dir, "vault.json"))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	if err := v.Store("cred-1", "api-key", "secret-XYZ", map[string]string{"label": "test"}, "test credential"); err != nil {
		t.Fatalf("vault.Store: %v", err)
	}

	authzStore, err := authz.New("test-signing-secret", filepath.Join(dir, "agents.json"), time.Hour)
	if err != nil {
		t.Fatalf("authz.New: %v", err)
	}
	apiKey, err := authzStore.RegisterAgent("agent-1", "Agent One", nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	reg := registry.New(search.NopClient{})
	rateLimiter := controls.NewRateLimiter(rateConfig)
	retrier := controls.NewRetrier(controls.DefaultRetryConfig())
	cache, err := controls.NewResultCache(controls.DefaultCacheConfig())
	if err != nil {
		t.Fatalf("NewResultCache: %v", err)
	}
	storageRegistry := storage.NewRegistry()
	storageRegistry.Register("default", storage.NewMemoryBackend())

	eng := engine.New(rateLimiter, retrier, cache, v, storageRegistry, nil)
	shaper := respond.New(respond.FormatSummary)

	deps := Dependencies{
		Registry:     reg,
		Vault:        v,
		VaultLookup:  vaultLookupForTest{v},
		Authz:        authzStore,
		Engine:       eng,
		RateLimiter:  rateLimiter,
		Auditor:      nil,
		Shaper:       shaper,
		DefaultLevel: validator.LevelModerate,
	}

	return testFixture{router: NewRouter(deps), apiKey: apiKey}
}

type vaultLookupForTest struct {
	v *vault.Vault
}

func (a vaultLookupForTest) Metadata(id string) (any, bool) {
	return a.v.Metadata(id)
}

func (f testFixture) do(method, path, body string, withAuth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if withAuth {
		req.Header.Set("X-API-Key", f.apiKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthRequiresNoAuth(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	w := f.do(http.MethodGet, "/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestProtectedRouteRejectsMissingCredentials(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	w := f.do(http.MethodGet, "/api/v1/capabilities", "", false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRouteRejectsBadAPIKey(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/capabilities", nil)
	req.Header.Set("X-API-Key", "not-a-real-key")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

// TestCapabilitiesWithholdsCredentialSecret exercises scenario S2: the
// capability projection must expose credential metadata but the response
// body must never contain the plaintext secret.
func TestCapabilitiesWithholdsCredentialSecret(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	w := f.do(http.MethodGet, "/api/v1/capabilities", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "secret-XYZ") {
		t.Fatalf("response leaked plaintext credential: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "cred-1") {
		t.Fatalf("expected credential metadata in response, got: %s", w.Body.String())
	}
}

// TestValidateRejectsDuplicateOperationID exercises scenario S5: a
// workflow with two operations sharing an id must be reported invalid with
// a diagnostic naming the duplicate.
func TestValidateRejectsDuplicateOperationID(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	workflow := `{"operationUpdate":{"workflowId":"wf1","operations":[` +
		`{"id":"fetch","operation":{"GetCurrentDateTime":{"outputPath":"/a"}}},` +
		`{"id":"fetch","operation":{"GetCurrentDateTime":{"outputPath":"/b"}}}]}}` + "\n" +
		`{"beginExecution":{"workflowId":"wf1","root":"fetch"}}`

	w := f.do(http.MethodPost, "/api/v1/workflows/validate", workflow, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"valid":false`) {
		t.Fatalf("expected invalid report, got: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Duplicate operation ID: fetch") {
		t.Fatalf("expected duplicate-id diagnostic, got: %s", w.Body.String())
	}
}

// TestExecuteWorkflowSucceeds runs a minimal well-formed workflow end to
// end through the HTTP surface.
func TestExecuteWorkflowSucceeds(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	workflow := `{"operationUpdate":{"workflowId":"wf1","operations":[` +
		`{"id":"now","operation":{"GetCurrentDateTime":{"timezone":"UTC","format":"iso8601","outputPath":"/now"}}}]}}` + "\n" +
		`{"beginExecution":{"workflowId":"wf1","root":"now"}}`

	w := f.do(http.MethodPost, "/api/v1/workflows/execute?skip_validation=true", workflow, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"success"`) {
		t.Fatalf("expected success envelope, got: %s", w.Body.String())
	}
}

// TestExecuteWorkflowRateLimitRefusal exercises scenario S3: with a
// per-minute budget of two, the third execute call in the window must be
// refused with 429, Retry-After, and X-RateLimit-Remaining: 0.
func TestExecuteWorkflowRateLimitRefusal(t *testing.T) {
	cfg := controls.DefaultRateLimitConfig()
	cfg.RequestsPerMinute = 2
	f := newFixture(t, cfg)

	workflow := `{"operationUpdate":{"workflowId":"wf1","operations":[` +
		`{"id":"now","operation":{"GetCurrentDateTime":{"timezone":"UTC","format":"iso8601","outputPath":"/now"}}}]}}` + "\n" +
		`{"beginExecution":{"workflowId":"wf1","root":"now"}}`

	for i := 0; i < 2; i++ {
		w := f.do(http.MethodPost, "/api/v1/workflows/execute?skip_validation=true", workflow, true)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/execute?skip_validation=true", strings.NewReader(workflow))
	req.Header.Set("X-API-Key", f.apiKey)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected X-RateLimit-Remaining: 0, got %q", w.Header().Get("X-RateLimit-Remaining"))
	}
	retryAfter := w.Header().Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be set")
	}
}

func TestRateLimitStatusEndpoint(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	w := f.do(http.MethodGet, "/api/v1/rate-limit/status", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "requestsPerMinute") {
		t.Fatalf("expected limits in response, got: %s", w.Body.String())
	}
}

func TestKnowledgeBasesAndSQLListEndpoints(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())

	w := f.do(http.MethodGet, "/api/v1/knowledge/bases", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = f.do(http.MethodGet, "/api/v1/sql-queries", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = f.do(http.MethodGet, "/api/v1/sql-queries/unknown-id", "", true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown SQL id, got %d", w.Code)
	}
}

func TestExecutionsListEmptyWithoutAuditor(t *testing.T) {
	f := newFixture(t, controls.DefaultRateLimitConfig())
	w := f.do(http.MethodGet, "/api/v1/executions", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"executions":[]`) {
		t.Fatalf("expected empty executions list, got: %s", w.Body.String())
	}
}
