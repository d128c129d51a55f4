// Package search defines the semantic-search collaborator interface the
// registry and vault delegate to when available. When no backend is
// configured, callers fall back to their own keyword scoring.
package search

import "context"

// Hit is one scored search result.
type Hit struct {
	Payload map[string]any
	Score   float64
}

// Client indexes and searches free-text content alongside a JSON payload.
// A production backend might be a vector store; the registry and vault
// never depend on which one is behind this interface.
type Client interface {
	Index(ctx context.Context, kind, id, text string, payload map[string]any) error
	Search(ctx context.Context, kind, text string, filter map[string]any, k int) ([]Hit, error)
}

// NopClient is returned when no semantic-search URL is configured; every
// call fails with ErrUnavailable so callers degrade to keyword search.
type NopClient struct{}

var _ Client = NopClient{}

func (NopClient) Index(context.Context, string, string, string, map[string]any) error {
	return ErrUnavailable
}

func (NopClient) Search(context.Context, string, string, map[string]any, int) ([]Hit, error) {
	return nil, ErrUnavailable
}

// ErrUnavailable is returned by NopClient and by a real client when the
// backend cannot be reached.
var ErrUnavailable = errUnavailable{}

type errUnavailable struct{}

func (errUnavailable) Error() string { return "search: collaborator unavailable" }
