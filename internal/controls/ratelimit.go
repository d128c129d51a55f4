// Package controls implements the execution controls component (C6): rate
// limiting, retry-with-backoff, and result caching. Each is consulted by
// the workflow engine around every operation it dispatches.
package controls

import (
	"sync"
	"time"
)

// RateLimitConfig bounds how often an agent may submit requests and, within
// that, how often it may perform outbound API calls.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	APICallsPerMinute int
	APICallsPerHour   int
}

// DefaultRateLimitConfig mirrors the original system's defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		APICallsPerMinute: 30,
		APICallsPerHour:   500,
	}
}

// rateLimitRecord holds rolling timestamp sequences for one agent: every
// request, and the subset that were ApiCall operations. Both are trimmed to
// the 24h window on every access.
type rateLimitRecord struct {
	requests []time.Time
	apiCalls []time.Time
}

const rateLimitWindow = 24 * time.Hour

func (r *rateLimitRecord) trim(now time.Time) {
	cutoff := now.Add(-rateLimitWindow)
	r.requests = trimBefore(r.requests, cutoff)
	r.apiCalls = trimBefore(r.apiCalls, cutoff)
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append([]time.Time{}, ts[i:]...)
}

func countSince(ts []time.Time, since time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(since) {
			n++
		}
	}
	return n
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// RateLimiter enforces rolling-window request limits per agent. Safe for
// concurrent use.
type RateLimiter struct {
	mu            sync.Mutex
	config        RateLimitConfig
	customConfigs map[string]RateLimitConfig
	records       map[string]*rateLimitRecord
}

// NewRateLimiter builds a RateLimiter with the given default config.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:        config,
		customConfigs: make(map[string]RateLimitConfig),
		records:       make(map[string]*rateLimitRecord),
	}
}

// SetAgentLimits overrides the default config for a single agent.
func (rl *RateLimiter) SetAgentLimits(agentID string, config RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.customConfigs[agentID] = config
}

func (rl *RateLimiter) configFor(agentID string) RateLimitConfig {
	if c, ok := rl.customConfigs[agentID]; ok {
		return c
	}
	return rl.config
}

func windowCheck(ts []time.Time, now time.Time, window time.Duration, limit int, label string) *Decision {
	count := countSince(ts, now.Add(-window))
	if count < limit {
		return nil
	}
	// retryAfter: time until the oldest request inside the window falls out of it.
	oldestInWindow := ts[len(ts)-limit]
	retryAfter := window - now.Sub(oldestInWindow)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Decision{
		Allowed:    false,
		Reason:     "rate limit exceeded: " + label,
		RetryAfter: retryAfter,
	}
}

// Check reports whether agentID may perform a request of the given
// operation kind right now, and records the attempt if allowed.
// operationKind is typically "" for a general request or "ApiCall" for an
// outbound call subject to the tighter API-call limits.
func (rl *RateLimiter) Check(agentID, operationKind string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	config := rl.configFor(agentID)
	record, ok := rl.records[agentID]
	if !ok {
		record = &rateLimitRecord{}
		rl.records[agentID] = record
	}

	now := time.Now()
	record.trim(now)

	if d := windowCheck(record.requests, now, time.Minute, config.RequestsPerMinute, "requests per minute"); d != nil {
		return *d
	}
	if d := windowCheck(record.requests, now, time.Hour, config.RequestsPerHour, "requests per hour"); d != nil {
		return *d
	}
	if d := windowCheck(record.requests, now, 24*time.Hour, config.RequestsPerDay, "requests per day"); d != nil {
		return *d
	}

	if operationKind == "ApiCall" {
		if d := windowCheck(record.apiCalls, now, time.Minute, config.APICallsPerMinute, "API calls per minute"); d != nil {
			return *d
		}
		if d := windowCheck(record.apiCalls, now, time.Hour, config.APICallsPerHour, "API calls per hour"); d != nil {
			return *d
		}
	}

	record.requests = append(record.requests, now)
	if operationKind == "ApiCall" {
		record.apiCalls = append(record.apiCalls, now)
	}

	return Decision{Allowed: true}
}

// Status is the agent-visible rate-limit usage snapshot, served by
// GET /api/v1/rate-limit/status.
type Status struct {
	AgentID string         `json:"agentId"`
	Limits  map[string]int `json:"limits"`
	Usage   map[string]int `json:"usage"`
	Remain  map[string]int `json:"remaining"`
}

// Status reports the current window usage and remaining budget for an
// agent without consuming any of it.
func (rl *RateLimiter) Status(agentID string) Status {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	config := rl.configFor(agentID)
	record, ok := rl.records[agentID]
	if !ok {
		record = &rateLimitRecord{}
	}
	now := time.Now()
	record.trim(now)

	reqMin := countSince(record.requests, now.Add(-time.Minute))
	reqHour := countSince(record.requests, now.Add(-time.Hour))
	reqDay := countSince(record.requests, now.Add(-24*time.Hour))
	apiMin := countSince(record.apiCalls, now.Add(-time.Minute))
	apiHour := countSince(record.apiCalls, now.Add(-time.Hour))

	remaining := func(limit, used int) int {
		if limit-used < 0 {
			return 0
		}
		return limit - used
	}

	return Status{
		AgentID: agentID,
		Limits: map[string]int{
			"requestsPerMinute": config.RequestsPerMinute,
			"requestsPerHour":   config.RequestsPerHour,
			"requestsPerDay":    config.RequestsPerDay,
			"apiCallsPerMinute": config.APICallsPerMinute,
			"apiCallsPerHour":   config.APICallsPerHour,
		},
		Usage: map[string]int{
			"requestsLastMinute": reqMin,
			"requestsLastHour":   reqHour,
			"requestsLastDay":    reqDay,
			"apiCallsLastMinute": apiMin,
			"apiCallsLastHour":   apiHour,
		},
		Remain: map[string]int{
			"requestsPerMinute": remaining(config.RequestsPerMinute, reqMin),
			"requestsPerHour":   remaining(config.RequestsPerHour, reqHour),
			"requestsPerDay":    remaining(config.RequestsPerDay, reqDay),
			"apiCallsPerMinute": remaining(config.APICallsPerMinute, apiMin),
			"apiCallsPerHour":   remaining(config.APICallsPerHour, apiHour),
		},
	}
}

// Reset clears an agent's history and any custom limits, used by
// operator tooling.
func (rl *RateLimiter) Reset(agentID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.records, agentID)
	delete(rl.customConfigs, agentID)
}

// CleanupOldRecords evicts agents with no activity inside maxAge, freeing
// memory for agents that never come back.
func (rl *RateLimiter) CleanupOldRecords(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-maxAge)
	for agentID, record := range rl.records {
		record.trim(now)
		if len(record.requests) == 0 {
			delete(rl.records, agentID)
			continue
		}
		newest := record.requests[len(record.requests)-1]
		if newest.Before(cutoff) {
			delete(rl.records, agentID)
		}
	}
}
