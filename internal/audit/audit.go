// Package audit implements the audit journal (component C7): a durable,
// append-only record of every operation dispatched by the workflow engine.
//
// Entries are written as daily-rotated JSONL files, one *os.File per
// calendar day guarded by a mutex, mirroring how the teacher middleware
// records one structured event per HTTP request — except here the journal
// is a file-backed log rather than a database table, and one execution
// produces one entry per operation rather than one entry per request.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one journal record: the outcome of dispatching a single
// operation within an execution.
type Entry struct {
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"executionId"`
	WorkflowID  string         `json:"workflowId,omitempty"`
	AgentID     string         `json:"agentId"`
	OperationID string         `json:"operationId"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"durationMs"`
	Config      map[string]any `json:"config,omitempty"`
}

// sensitiveKeyPattern matches any field name that looks like it carries a
// secret, regardless of casing or separators: "token", "password",
// "secret", "apiKey"/"api_key", and anything containing "auth".
var sensitiveKeyPattern = regexp.MustCompile(`(?i)token|password|secret|key|auth`)

const maxFieldLength = 2048

// redactValue walks an arbitrary JSON-shaped value, replacing any map value
// whose key matches sensitiveKeyPattern with "[REDACTED]", recursing into
// nested maps and arrays, and truncating long strings so a single runaway
// field can't blow out one journal line.
func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "Authorization" || k == "authorization" {
				if s, ok := val.(string); ok {
					out[k] = stripAuthScheme(s)
					continue
				}
				out[k] = "[REDACTED]"
				continue
			}
			if sensitiveKeyPattern.MatchString(k) {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	case string:
		if len(t) > maxFieldLength {
			return t[:maxFieldLength] + "...[truncated]"
		}
		return t
	default:
		return v
	}
}

func redactConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	redacted, _ := redactValue(config).(map[string]any)
	return redacted
}

// Journal is a daily-rotated JSONL audit log. Safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	dir     string
	date    string
	file    *os.File
	entries []Entry // in-memory index backing Query/GetDetails
}

// Open prepares a Journal writing under dir, creating it if necessary.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	j := &Journal{dir: dir}
	if err := j.loadExisting(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) loadExisting() error {
	matches, err := filepath.Glob(filepath.Join(j.dir, "audit-*.jsonl"))
	if err != nil {
		return fmt.Errorf("audit: list existing logs: %w", err)
	}
	sort.Strings(matches)
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var e Entry
			if json.Unmarshal(scanner.Bytes(), &e) == nil {
				j.entries = append(j.entries, e)
			}
		}
		f.Close()
	}
	return nil
}

func (j *Journal) filePathFor(date string) string {
	return filepath.Join(j.dir, fmt.Sprintf("audit-%s.jsonl", date))
}

// rotateLocked ensures j.file is open against today's file, closing
// yesterday's handle if the day has rolled over. Caller must hold j.mu.
func (j *Journal) rotateLocked(now time.Time) error {
	date := now.UTC().Format("2006-01-02")
	if j.file != nil && j.date == date {
		return nil
	}
	if j.file != nil {
		j.file.Close()
	}
	f, err := os.OpenFile(j.filePathFor(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log file: %w", err)
	}
	j.file = f
	j.date = date
	return nil
}

// Record appends entry to today's file and the in-memory index, redacting
// its config before either write. Implements engine.AuditSink indirectly
// via the Record(engine.AuditEntry) adapter in cmd/a2e-server.
func (j *Journal) Record(entry Entry) error {
	entry.Config = redactConfig(entry.Config)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.rotateLocked(entry.Timestamp); err != nil {
		return err
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	j.entries = append(j.entries, entry)
	return nil
}

// Close flushes and closes the current file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// QueryFilter narrows Query's result set; zero-valued fields are ignored.
type QueryFilter struct {
	AgentID    string
	WorkflowID string
	Status     string
	From       time.Time
	To         time.Time
	Limit      int
}

// Query returns matching entries, most recent first, capped at Limit (0
// means unbounded).
func (j *Journal) Query(filter QueryFilter) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var matched []Entry
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		if filter.WorkflowID != "" && e.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.Timestamp.After(filter.To) {
			continue
		}
		matched = append(matched, e)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}
	return matched
}

// GetDetails returns every entry recorded for a single execution, in the
// order they were dispatched.
func (j *Journal) GetDetails(executionID string) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var details []Entry
	for _, e := range j.entries {
		if e.ExecutionID == executionID {
			details = append(details, e)
		}
	}
	sort.SliceStable(details, func(i, k int) bool {
		return details[i].Timestamp.Before(details[k].Timestamp)
	})
	return details
}

// stripAuthScheme redacts an Authorization header value, keeping a leading
// "Bearer "/"Basic " scheme prefix and replacing the rest with
// "[REDACTED]", matching the original audit middleware's special-casing of
// the Authorization header among sensitive fields.
func stripAuthScheme(value string) string {
	for _, scheme := range []string{"Bearer ", "Basic "} {
		if strings.HasPrefix(value, scheme) {
			return scheme + "[REDACTED]"
		}
	}
	return "[REDACTED]"
}
