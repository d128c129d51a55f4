// Package registry is the capability registry (component C1): a
// read-mostly store of API definitions, the SQL-query catalog, and the
// fixed operation-kind catalog. It is the single source of truth for
// "which API does this URL belong to" lookups used by the validator.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/a2e-systems/a2e-exec/internal/logging"
	"github.com/a2e-systems/a2e-exec/internal/search"
)

// Endpoint is one declared route of an API definition.
type Endpoint struct {
	Path        string            `json:"path"`
	Method      string            `json:"method"`
	Description string            `json:"description,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// API is a registered API definition.
type API struct {
	ID        string     `json:"id"`
	BaseURL   string     `json:"baseUrl"`
	Endpoints []Endpoint `json:"endpoints"`
}

// SQLQuery is a catalog entry for a named, parameterized query.
type SQLQuery struct {
	ID          string   `json:"id"`
	SQL         string   `json:"sql"`
	Description string   `json:"description,omitempty"`
	Database    string   `json:"database"`
	Category    string   `json:"category,omitempty"`
	Parameters  []string `json:"parameters,omitempty"`
}

// OperationSchema describes one of the fixed catalog of operation kinds the
// engine can dispatch.
type OperationSchema struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	InputShape  string `json:"inputShape"`  // "array", "scalar", "any"
	OutputShape string `json:"outputShape"` // "array", "scalar", "any"
}

// Catalog is the closed set of operation kinds this engine implements.
// Never populated lazily: every kind the workflow engine can dispatch must
// appear here, and nothing else does.
var Catalog = []OperationSchema{
	{Kind: "ApiCall", Description: "invoke a registered HTTP API endpoint", InputShape: "any", OutputShape: "any"},
	{Kind: "FilterData", Description: "filter an array by a predicate", InputShape: "array", OutputShape: "array"},
	{Kind: "TransformData", Description: "map each element of an array", InputShape: "array", OutputShape: "array"},
	{Kind: "StoreData", Description: "persist a value to a named backend", InputShape: "any", OutputShape: "scalar"},
	{Kind: "MergeData", Description: "merge two or more values", InputShape: "any", OutputShape: "any"},
	{Kind: "Conditional", Description: "branch on a boolean expression", InputShape: "any", OutputShape: "any"},
	{Kind: "Loop", Description: "repeat a body over an array or a bound", InputShape: "array", OutputShape: "array"},
	{Kind: "Wait", Description: "pause dispatch for a fixed duration", InputShape: "any", OutputShape: "scalar"},
	{Kind: "GetCurrentDateTime", Description: "read the current time in a timezone", InputShape: "any", OutputShape: "scalar"},
	{Kind: "ConvertTimezone", Description: "convert a timestamp between timezones", InputShape: "scalar", OutputShape: "scalar"},
	{Kind: "DateCalculation", Description: "add/subtract a calendar delta from a timestamp", InputShape: "scalar", OutputShape: "scalar"},
	{Kind: "FormatText", Description: "render a template against the data model", InputShape: "any", OutputShape: "scalar"},
	{Kind: "ExtractText", Description: "extract a substring or pattern match", InputShape: "scalar", OutputShape: "scalar"},
	{Kind: "ValidateData", Description: "check a value against a shape rule", InputShape: "any", OutputShape: "scalar"},
	{Kind: "Calculate", Description: "evaluate an arithmetic expression", InputShape: "any", OutputShape: "scalar"},
	{Kind: "EncodeDecode", Description: "encode or decode a value (base64, url, json)", InputShape: "scalar", OutputShape: "scalar"},
}

// arrayProducingKinds is used by the validator's type-compatibility check
// to decide whether a given operation kind's output may feed an
// array-input operation.
var arrayProducingKinds = map[string]bool{
	"FilterData":     true,
	"TransformData":  true,
	"Loop":           true,
}

// ProducesArray reports whether kind is known to produce an array output.
func ProducesArray(kind string) bool {
	return arrayProducingKinds[kind]
}

// RequiresArrayInput reports whether kind requires an array-shaped input.
func RequiresArrayInput(kind string) bool {
	for _, s := range Catalog {
		if s.Kind == kind {
			return s.InputShape == "array"
		}
	}
	return false
}

// Registry holds APIs and the SQL catalog, and delegates search to an
// optional semantic-search collaborator with a deterministic keyword
// fallback.
type Registry struct {
	mu       sync.RWMutex
	apis     map[string]API
	sqlByID  map[string]SQLQuery
	searcher search.Client
}

// New builds an empty Registry. searcher may be search.NopClient{} to force
// keyword-only search.
func New(searcher search.Client) *Registry {
	if searcher == nil {
		searcher = search.NopClient{}
	}
	return &Registry{
		apis:     make(map[string]API),
		sqlByID:  make(map[string]SQLQuery),
		searcher: searcher,
	}
}

type apiFile struct {
	APIs map[string]API `json:"apis"`
}

// LoadAPIs reads API definitions from a JSON file of the form
// {"apis": {...}} and indexes them into the search collaborator.
func (r *Registry) LoadAPIs(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", path, err)
	}
	var f apiFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("registry: parse %s: %w", path, err)
	}

	r.mu.Lock()
	for id, api := range f.APIs {
		api.ID = id
		r.apis[id] = api
	}
	r.mu.Unlock()

	for id, api := range f.APIs {
		text := fmt.Sprintf("API %s base %s", id, api.BaseURL)
		_ = r.searcher.Index(ctx, "api", id, text, map[string]any{"id": id, "baseUrl": api.BaseURL})
	}

	logging.Component("registry").Info().Int("count", len(f.APIs)).Msg("loaded API definitions")
	return nil
}

type sqlFile struct {
	Queries map[string]SQLQuery `json:"queries"`
}

// LoadSQL reads the SQL catalog from a JSON file of the form
// {"queries": {...}}.
func (r *Registry) LoadSQL(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", path, err)
	}
	var f sqlFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("registry: parse %s: %w", path, err)
	}

	r.mu.Lock()
	for id, q := range f.Queries {
		q.ID = id
		r.sqlByID[id] = q
	}
	r.mu.Unlock()

	for id, q := range f.Queries {
		text := fmt.Sprintf("%s %s %s", q.Description, q.Database, q.Category)
		_ = r.searcher.Index(ctx, "sql", id, text, map[string]any{"id": id, "database": q.Database, "category": q.Category})
	}

	logging.Component("registry").Info().Int("count", len(f.Queries)).Msg("loaded SQL catalog")
	return nil
}

// ListAPIs returns every registered API definition, sorted by id.
func (r *Registry) ListAPIs() []API {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]API, 0, len(r.apis))
	for _, a := range r.apis {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAPI returns a single API definition by id.
func (r *Registry) GetAPI(id string) (API, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.apis[id]
	return a, ok
}

// ListOperations returns the fixed operation-kind catalog.
func (r *Registry) ListOperations() []OperationSchema {
	return Catalog
}

// ListSQL returns SQL catalog entries, optionally filtered by database
// and/or category, sorted by id.
func (r *Registry) ListSQL(database, category string) []SQLQuery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SQLQuery, 0, len(r.sqlByID))
	for _, q := range r.sqlByID {
		if database != "" && q.Database != database {
			continue
		}
		if category != "" && q.Category != category {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetSQL returns a single SQL catalog entry by id.
func (r *Registry) GetSQL(id string) (SQLQuery, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.sqlByID[id]
	return q, ok
}

// FindAPIByHost returns the API whose base URL host matches host, used by
// the validator's API-compatibility check.
func (r *Registry) FindAPIByHost(host string) (API, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.apis {
		if u, err := url.Parse(a.BaseURL); err == nil && strings.EqualFold(u.Host, host) {
			return a, true
		}
	}
	return API{}, false
}

// EndpointDeclared reports whether (method, path) matches a declared
// endpoint of api.
func EndpointDeclared(api API, method, path string) bool {
	for _, e := range api.Endpoints {
		if strings.EqualFold(e.Method, method) && e.Path == path {
			return true
		}
	}
	return false
}
