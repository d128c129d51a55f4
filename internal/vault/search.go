package vault

import (
	"fmt"
	"sort"
	"strings"
)

func splitWords(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// scoreCredential mirrors the weighting used by the original vault's
// keyword search: description matches score 3, metadata matches score 2,
// id matches score 1.
func scoreCredential(c Credential, words []string) int {
	description := strings.ToLower(c.Description)
	id := strings.ToLower(c.ID)
	metadataStr := strings.ToLower(metadataToString(c.Metadata))

	score := 0
	for _, w := range words {
		if w == "" {
			continue
		}
		if strings.Contains(description, w) {
			score += 3
		}
		if strings.Contains(metadataStr, w) {
			score += 2
		}
		if strings.Contains(id, w) {
			score += 1
		}
	}
	return score
}

func metadataToString(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	var sb strings.Builder
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s:%s ", k, m[k])
	}
	return sb.String()
}

