package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2e-systems/a2e-exec/internal/registry"
	"github.com/a2e-systems/a2e-exec/internal/search"
)

func jsonl(lines ...string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func TestValidateRejectsEmptyWorkflow(t *testing.T) {
	v := New(nil, nil, nil, LevelModerate)
	valid, issues := v.Validate("", "agent-1")
	assert.False(t, valid)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	v := New(nil, nil, nil, LevelModerate)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"a","operation":{"Calculate":{"expression":"1+1"}}},
		{"id":"a","operation":{"Calculate":{"expression":"2+2"}}}
	]}}`)
	valid, issues := v.Validate(wf, "agent-1")
	assert.False(t, valid)
	found := false
	for _, i := range issues {
		if i.Severity == SeverityError {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateRejectsUnknownInputPathTarget(t *testing.T) {
	v := New(nil, nil, nil, LevelModerate)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"a","operation":{"FilterData":{"inputPath":"/workflow/missing"}}}
	]}}`)
	valid, issues := v.Validate(wf, "agent-1")
	assert.False(t, valid)
	assert.Contains(t, issues[0].Message, "missing")
}

func TestValidateAcceptsWellFormedWorkflow(t *testing.T) {
	v := New(nil, nil, nil, LevelModerate)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"fetch","operation":{"ApiCall":{"url":"https://api.weather.test/forecast","method":"GET"}}},
		{"id":"filter","operation":{"FilterData":{"inputPath":"/workflow/fetch"}}}
	]}}`)
	valid, issues := v.Validate(wf, "agent-1")
	assert.True(t, valid, "%v", issues)
}

func TestValidateFlagsArrayTypeMismatch(t *testing.T) {
	v := New(nil, nil, nil, LevelModerate)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"now","operation":{"GetCurrentDateTime":{"timezone":"UTC"}}},
		{"id":"filter","operation":{"FilterData":{"inputPath":"/workflow/now"}}}
	]}}`)
	valid, _ := v.Validate(wf, "agent-1")
	assert.False(t, valid)
}

func TestValidateConditionalReferencesMustExist(t *testing.T) {
	v := New(nil, nil, nil, LevelModerate)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"cond","operation":{"Conditional":{"ifTrue":"missing-op","ifFalse":"also-missing"}}}
	]}}`)
	valid, issues := v.Validate(wf, "agent-1")
	assert.False(t, valid)
	assert.GreaterOrEqual(t, len(issues), 2)
}

func TestValidateLenientOnlyKeepsWillFailErrors(t *testing.T) {
	v := New(nil, nil, nil, LevelLenient)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"a","operation":{"Calculate":{}}},
		{"id":"b","operation":{"FilterData":{"inputPath":"/workflow/missing"}}}
	]}}`)
	_, issues := v.Validate(wf, "agent-1")
	for _, i := range issues {
		assert.Contains(t, i.Message, "will fail")
	}
}

func TestValidateStrictIncludesWarnings(t *testing.T) {
	v := New(nil, nil, nil, LevelStrict)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"fetch","operation":{"ApiCall":{"url":"https://unregistered.example.com/x","method":"GET"}}},
		{"id":"filtered","operation":{"FilterData":{"inputPath":"/workflow/fetch","conditions":[]}}}
	]}}`)
	_, issues := v.Validate(wf, "agent-1")
	hasWarning := false
	for _, i := range issues {
		if i.Severity == SeverityWarning {
			hasWarning = true
		}
	}
	assert.True(t, hasWarning)
}

// An unbounded Loop (no declared maxIterations) is a validation error, not
// a warning: it has no way to bound how long a run may take.
func TestValidateLoopWithoutDeclaredBoundIsError(t *testing.T) {
	v := New(nil, nil, nil, LevelStrict)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"loop","operation":{"Loop":{"operations":[]}}}
	]}}`)
	valid, issues := v.Validate(wf, "agent-1")
	assert.False(t, valid)

	hasError := false
	for _, i := range issues {
		if i.Severity == SeverityError && i.OperationID == "loop" {
			hasError = true
		}
	}
	assert.True(t, hasError)
}

// A Loop that declares a positive maxIterations bound passes without a
// diagnostic from this check.
func TestValidateLoopWithDeclaredBoundPasses(t *testing.T) {
	v := New(nil, nil, nil, LevelStrict)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"loop","operation":{"Loop":{"operations":[],"maxIterations":10}}}
	]}}`)
	_, issues := v.Validate(wf, "agent-1")
	for _, i := range issues {
		assert.NotEqual(t, "loop", i.OperationID)
	}
}

func TestValidateAPICompatibilityUsesRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"apis": {"weather": {"baseUrl": "https://api.weather.test", "endpoints": [{"path": "/forecast", "method": "GET"}]}}
	}`), 0600))

	reg := registry.New(search.NopClient{})
	require.NoError(t, reg.LoadAPIs(context.Background(), path))

	v := New(reg, nil, nil, LevelStrict)
	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"fetch","operation":{"ApiCall":{"url":"https://api.weather.test/unknown","method":"POST"}}}
	]}}`)
	_, issues := v.Validate(wf, "agent-1")

	foundUnknownEndpoint := false
	for _, i := range issues {
		if i.Severity == SeverityWarning {
			foundUnknownEndpoint = true
		}
	}
	assert.True(t, foundUnknownEndpoint)
}

type fakeVault struct{ known map[string]bool }

func (f fakeVault) Metadata(id string) (any, bool) { return nil, f.known[id] }

type fakeAuthz struct{ allowed map[string]bool }

func (f fakeAuthz) IsAPIAllowed(agentID, apiID string) bool { return true }
func (f fakeAuthz) IsCredentialAllowed(agentID, credID string) bool {
	return f.allowed[credID]
}

func TestValidateCredentialsChecksExistenceAndPermission(t *testing.T) {
	vault := fakeVault{known: map[string]bool{"cred-1": true}}
	authz := fakeAuthz{allowed: map[string]bool{}}
	v := New(nil, vault, authz, LevelModerate)

	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"fetch","operation":{"ApiCall":{"url":"https://api.weather.test/forecast","headers":{"Authorization":{"credentialRef":{"id":"cred-1"}}}}}}
	]}}`)
	valid, issues := v.Validate(wf, "agent-1")
	assert.False(t, valid)
	assert.Contains(t, issues[0].Message, "permission")
}

func TestValidateCredentialsFlagsMissingCredential(t *testing.T) {
	vault := fakeVault{known: map[string]bool{}}
	authz := fakeAuthz{allowed: map[string]bool{}}
	v := New(nil, vault, authz, LevelModerate)

	wf := jsonl(`{"operationUpdate":{"operations":[
		{"id":"fetch","operation":{"ApiCall":{"url":"https://api.weather.test/forecast","headers":{"Authorization":{"credentialRef":{"id":"missing"}}}}}}
	]}}`)
	valid, issues := v.Validate(wf, "agent-1")
	assert.False(t, valid)
	assert.Contains(t, issues[0].Message, "does not exist")
}
