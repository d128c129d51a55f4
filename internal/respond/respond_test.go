package respond

import (
	"errors"
	"strings"
	"testing"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMinimalExtractsDataField(t *testing.T) {
	s := New(FormatMinimal)
	out := s.FormatSuccess("e1", map[string]any{
		"op1": map[string]any{"data": []any{1.0, 2.0}},
	}, "")
	assert.Equal(t, "success", out["status"])
	data := out["data"].(map[string]any)
	assert.Equal(t, []any{1.0, 2.0}, data["op1"])
}

func TestFormatMinimalExtractsRelevantScalarFields(t *testing.T) {
	s := New(FormatMinimal)
	out := s.FormatSuccess("e1", map[string]any{
		"op1": map[string]any{"id": "abc", "unrelatedField": "noise"},
	}, "")
	data := out["data"].(map[string]any)
	relevant := data["op1"].(map[string]any)
	assert.Equal(t, "abc", relevant["id"])
	_, hasNoise := relevant["unrelatedField"]
	assert.False(t, hasNoise)
}

func TestFormatSummaryIncludesOperationStatusAndData(t *testing.T) {
	s := New(FormatSummary)
	out := s.FormatSuccess("e1", map[string]any{
		"op1": map[string]any{"id": "abc", "count": 3.0},
	}, "")
	assert.Equal(t, "e1", out["executionId"])
	ops := out["operations"].(map[string]any)
	op1 := ops["op1"].(map[string]any)
	assert.Equal(t, "success", op1["status"])
	assert.Equal(t, 3.0, op1["count"])
}

func TestFormatFullReturnsRawResults(t *testing.T) {
	s := New(FormatFull)
	results := map[string]any{"op1": map[string]any{"x": 1.0}}
	out := s.FormatSuccess("e1", results, "")
	assert.Equal(t, results, out["results"])
}

func TestExtractUsefulFieldsCapsArrayAndDepth(t *testing.T) {
	items := make([]any, 60)
	for i := range items {
		items[i] = map[string]any{"id": "x"}
	}
	result := extractUsefulFields(map[string]any{"items": items}, 3, 0)
	obj := result.(map[string]any)
	limited := obj["items"].([]any)
	assert.LessOrEqual(t, len(limited), 50)
}

func TestFormatErrorSanitizesPathsAndTruncatesLength(t *testing.T) {
	s := New(FormatSummary)
	longMsg := strings.Repeat("x", 600)
	out := s.FormatError("e1", errors.New("failed reading /var/lib/secret/token.txt: "+longMsg), "op1", nil)
	errBody := out["error"].(map[string]any)
	msg := errBody["message"].(string)
	assert.NotContains(t, msg, "/var/lib")
	assert.Contains(t, msg, "[path]")
	assert.LessOrEqual(t, len(msg), 520)
}

func TestFormatErrorAttachesCategorySuggestions(t *testing.T) {
	s := New(FormatSummary)
	err := apierrors.New(apierrors.CategoryAuthentication, "invalid token")
	out := s.FormatError("e1", err, "op1", nil)
	errBody := out["error"].(map[string]any)
	assert.Equal(t, "Authentication", errBody["type"])
	suggestions := errBody["suggestions"].([]string)
	require.NotEmpty(t, suggestions)
}

func TestFormatErrorAddsStatusBucketSuggestionForAPIError(t *testing.T) {
	s := New(FormatSummary)
	err := apierrors.APIErrorFromStatus(429, "rate limited upstream")
	out := s.FormatError("e1", err, "op1", nil)
	errBody := out["error"].(map[string]any)
	suggestions := errBody["suggestions"].([]string)

	found := false
	for _, sug := range suggestions {
		if strings.Contains(sug, "rate limited") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFormatErrorExtractsURLDomainFromContext(t *testing.T) {
	s := New(FormatSummary)
	ctx := &ErrorContext{URL: "https://api.example.com/v1/things?x=1", Method: "GET", StatusCode: 500}
	out := s.FormatError("e1", errors.New("boom"), "op1", ctx)
	errBody := out["error"].(map[string]any)
	relevant := errBody["context"].(map[string]any)
	assert.Equal(t, "api.example.com", relevant["domain"])
	assert.Equal(t, "GET", relevant["method"])
	assert.Equal(t, 500, relevant["statusCode"])
}

func TestFormatPartialSuccessSplitsSuccessAndFailure(t *testing.T) {
	s := New(FormatSummary)
	out := s.FormatPartialSuccess("e1",
		map[string]any{"good": map[string]any{"value": 1.0}},
		map[string]error{"bad": errors.New("boom")},
	)
	assert.Equal(t, "partial_success", out["status"])
	successful := out["successful"].(map[string]any)
	assert.Equal(t, 1, successful["count"])
	failed := out["failed"].(map[string]any)
	assert.Equal(t, 1, failed["count"])
}
