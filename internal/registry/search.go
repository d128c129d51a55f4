package registry

import (
	"context"
	"sort"
	"strings"
)

// SearchResult pairs a matched item's id with its relevance score.
type SearchResult struct {
	ID    string
	Score float64
}

// SearchAPIs delegates to the semantic-search collaborator when available;
// on any error (including an unconfigured collaborator) it falls back to a
// deterministic keyword score: weighted substring hits summed across
// description/path/id, descending by score then ascending by id.
func (r *Registry) SearchAPIs(ctx context.Context, query string, k int) []SearchResult {
	if hits, err := r.searcher.Search(ctx, "api", query, nil, k); err == nil {
		out := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			if id, ok := h.Payload["id"].(string); ok {
				out = append(out, SearchResult{ID: id, Score: h.Score})
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return r.keywordSearchAPIs(query, k)
}

func (r *Registry) keywordSearchAPIs(query string, k int) []SearchResult {
	words := strings.Fields(strings.ToLower(query))
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []SearchResult
	for id, api := range r.apis {
		score := 0
		idLower := strings.ToLower(id)
		baseLower := strings.ToLower(api.BaseURL)
		var pathsLower strings.Builder
		for _, e := range api.Endpoints {
			pathsLower.WriteString(strings.ToLower(e.Path))
			pathsLower.WriteByte(' ')
			pathsLower.WriteString(strings.ToLower(e.Description))
			pathsLower.WriteByte(' ')
		}
		for _, w := range words {
			if w == "" {
				continue
			}
			if strings.Contains(pathsLower.String(), w) {
				score += 3
			}
			if strings.Contains(baseLower, w) {
				score += 2
			}
			if strings.Contains(idLower, w) {
				score += 1
			}
		}
		if score > 0 {
			results = append(results, SearchResult{ID: id, Score: float64(score)})
		}
	}
	sortResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// SearchSQL is the SQL-catalog analogue of SearchAPIs.
func (r *Registry) SearchSQL(ctx context.Context, query string, k int) []SearchResult {
	if hits, err := r.searcher.Search(ctx, "sql", query, nil, k); err == nil {
		out := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			if id, ok := h.Payload["id"].(string); ok {
				out = append(out, SearchResult{ID: id, Score: h.Score})
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return r.keywordSearchSQL(query, k)
}

func (r *Registry) keywordSearchSQL(query string, k int) []SearchResult {
	words := strings.Fields(strings.ToLower(query))
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []SearchResult
	for id, q := range r.sqlByID {
		score := 0
		descLower := strings.ToLower(q.Description)
		catLower := strings.ToLower(q.Category)
		idLower := strings.ToLower(id)
		for _, w := range words {
			if w == "" {
				continue
			}
			if strings.Contains(descLower, w) {
				score += 3
			}
			if strings.Contains(catLower, w) {
				score += 2
			}
			if strings.Contains(idLower, w) {
				score += 1
			}
		}
		if score > 0 {
			results = append(results, SearchResult{ID: id, Score: float64(score)})
		}
	}
	sortResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
