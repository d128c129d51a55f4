package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2e-systems/a2e-exec/internal/search"
)

func writeJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadAPIsAndFindByHost(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "apis.json", `{
		"apis": {
			"weather": {"baseUrl": "https://api.weather.test", "endpoints": [{"path": "/forecast", "method": "GET", "description": "get forecast"}]}
		}
	}`)

	r := New(search.NopClient{})
	require.NoError(t, r.LoadAPIs(context.Background(), path))

	apis := r.ListAPIs()
	require.Len(t, apis, 1)
	assert.Equal(t, "weather", apis[0].ID)

	api, ok := r.FindAPIByHost("api.weather.test")
	require.True(t, ok)
	assert.True(t, EndpointDeclared(api, "GET", "/forecast"))
	assert.False(t, EndpointDeclared(api, "POST", "/forecast"))
}

func TestKeywordSearchFallsBackWithoutSemanticSearch(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "apis.json", `{
		"apis": {
			"weather": {"baseUrl": "https://api.weather.test", "endpoints": [{"path": "/forecast", "method": "GET", "description": "daily forecast"}]},
			"billing": {"baseUrl": "https://api.billing.test", "endpoints": []}
		}
	}`)

	r := New(search.NopClient{})
	require.NoError(t, r.LoadAPIs(context.Background(), path))

	results := r.SearchAPIs(context.Background(), "forecast", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "weather", results[0].ID)
}

func TestListSQLFiltersByDatabaseAndCategory(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "sql.json", `{
		"queries": {
			"q1": {"sql": "SELECT 1", "database": "main", "category": "reporting"},
			"q2": {"sql": "SELECT 2", "database": "main", "category": "billing"},
			"q3": {"sql": "SELECT 3", "database": "analytics", "category": "reporting"}
		}
	}`)

	r := New(search.NopClient{})
	require.NoError(t, r.LoadSQL(context.Background(), path))

	results := r.ListSQL("main", "reporting")
	require.Len(t, results, 1)
	assert.Equal(t, "q1", results[0].ID)
}

func TestCatalogIsClosedSet(t *testing.T) {
	r := New(search.NopClient{})
	ops := r.ListOperations()
	assert.Len(t, ops, 16)

	kinds := map[string]bool{}
	for _, op := range ops {
		kinds[op.Kind] = true
	}
	assert.True(t, kinds["ApiCall"])
	assert.True(t, kinds["FilterData"])
	assert.True(t, kinds["EncodeDecode"])
}

func TestRequiresArrayInput(t *testing.T) {
	assert.True(t, RequiresArrayInput("FilterData"))
	assert.False(t, RequiresArrayInput("Calculate"))
}
