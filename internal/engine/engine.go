// Package engine implements the workflow engine (component C5): it parses a
// workflow described as a JSONL stream of operationUpdate/beginExecution
// frames, orders its operations by dependency, and dispatches each through
// the execution controls (rate limiting, retry, caching), credential
// injection, and the sixteen operation-kind handlers, writing every
// operation's outcome into a per-execution data model and audit trail.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
	"github.com/a2e-systems/a2e-exec/internal/controls"
	"github.com/a2e-systems/a2e-exec/internal/storage"
)

// CredentialInjector abstracts the credential vault's Inject step so this
// package does not need to import internal/vault directly.
type CredentialInjector interface {
	Inject(config map[string]any) (map[string]any, error)
}

// AuditSink receives one record per dispatched operation. Implemented by
// internal/audit's journal; nil is accepted (records are simply dropped),
// which keeps the engine usable in tests without a journal.
type AuditSink interface {
	Record(entry AuditEntry)
}

// AuditEntry is what the engine reports to the audit journal after every
// operation dispatch.
type AuditEntry struct {
	ExecutionID string
	AgentID     string
	OperationID string
	Kind        string
	Status      string // "success" | "error"
	Error       string
	DurationMs  int64
}

// remoteKinds are the operation kinds whose handler invocation goes through
// the retrier, because they cross a process boundary and can fail
// transiently: outbound HTTP calls and durable-store writes.
var remoteKinds = map[string]bool{
	"ApiCall":   true,
	"StoreData": true,
}

// Engine wires the execution controls and collaborators needed to run a
// workflow end to end.
type Engine struct {
	RateLimiter *controls.RateLimiter
	Retrier     *controls.Retrier
	Cache       *controls.ResultCache
	Vault       CredentialInjector
	Storage     *storage.Registry
	Audit       AuditSink

	// MaxExecutionTime bounds the whole run; zero means no bound.
	MaxExecutionTime time.Duration
}

// New builds an Engine from its collaborators. Cache, Audit and Storage may
// be nil; RateLimiter and Retrier fall back to their documented defaults.
func New(rateLimiter *controls.RateLimiter, retrier *controls.Retrier, cache *controls.ResultCache, vault CredentialInjector, store *storage.Registry, audit AuditSink) *Engine {
	if rateLimiter == nil {
		rateLimiter = controls.NewRateLimiter(controls.DefaultRateLimitConfig())
	}
	if retrier == nil {
		retrier = controls.NewRetrier(controls.DefaultRetryConfig())
	}
	return &Engine{
		RateLimiter: rateLimiter,
		Retrier:     retrier,
		Cache:       cache,
		Vault:       vault,
		Storage:     store,
		Audit:       audit,
	}
}

// execContext threads per-execution state (the data model, the workflow
// being walked, the agent submitting it) through every handler call.
type execContext struct {
	ctx         context.Context
	executionID string
	agentID     string
	workflow    *Workflow
	dataModel   *DataModel
}

// OperationResult records one operation's outcome for the Result below.
type OperationResult struct {
	OperationID string `json:"operationId"`
	Kind        string `json:"kind"`
	Status      string `json:"status"` // "success" | "error" | "skipped"
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"durationMs"`
}

// Result is the engine's full account of one execution.
type Result struct {
	ExecutionID string            `json:"executionId"`
	Status      string            `json:"status"` // "success" | "partial_success" | "error"
	Operations  []OperationResult `json:"operations"`
	DataModel   *DataModel        `json:"-"`
}

// Execute runs workflowJSONL for agentID end to end, dispatching every
// operation in dependency order. A failing operation never aborts the run:
// its dependents receive a MissingInput diagnostic in the data model and
// dispatch continues, so the final status reflects the whole run rather
// than the first failure. A Conditional's untaken branch is skipped rather
// than dispatched — that skip is expected control flow, not a failure, and
// does not by itself downgrade the run to partial_success; it cascades to
// anything nested inside the untaken branch the same way a real failure
// cascades to its dependents.
func (e *Engine) Execute(ctx context.Context, executionID, agentID, workflowJSONL string) (*Result, error) {
	wf := ParseJSONL(workflowJSONL)
	order := wf.BuildExecutionOrder()
	branchParent := wf.ConditionalTargets()

	if e.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.MaxExecutionTime)
		defer cancel()
	}

	ec := &execContext{
		ctx:         ctx,
		executionID: executionID,
		agentID:     agentID,
		workflow:    wf,
		dataModel:   NewDataModel(),
	}

	results := make([]OperationResult, 0, len(order))
	unavailable := make(map[string]bool) // no usable output, for any reason
	benign := make(map[string]bool)      // unavailable because a branch wasn't taken, not a failure
	skipMsg := make(map[string]string)
	succeeded := 0
	sawFailure := false

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			results = append(results, OperationResult{OperationID: id, Status: "skipped", Error: err.Error()})
			unavailable[id] = true
			sawFailure = true
			continue
		}

		op, ok := wf.Get(id)
		if !ok {
			continue
		}

		if unavailable[id] {
			results = append(results, OperationResult{OperationID: op.ID, Kind: op.Kind, Status: "skipped", Error: skipMsg[id]})
			if !benign[id] {
				sawFailure = true
			}
			continue
		}

		if parent, ok := branchParent[op.ID]; ok && unavailable[parent] {
			unavailable[op.ID] = true
			benign[op.ID] = benign[parent]
			msg := "branch not taken"
			if !benign[parent] {
				msg = "upstream Conditional could not be evaluated"
				sawFailure = true
			}
			skipMsg[op.ID] = msg
			results = append(results, OperationResult{OperationID: op.ID, Kind: op.Kind, Status: "skipped", Error: msg})
			continue
		}

		if dependsOnFailure(op, unavailable) {
			ec.dataModel.Set(fmt.Sprintf("/operations/%s/error", op.ID), "MissingInput: an upstream operation failed")
			results = append(results, OperationResult{OperationID: op.ID, Kind: op.Kind, Status: "skipped", Error: "MissingInput"})
			unavailable[op.ID] = true
			sawFailure = true
			continue
		}

		start := time.Now()
		result, err := e.dispatch(ec, op)
		duration := time.Since(start)

		status := "success"
		errMsg := ""
		if err != nil {
			status = "error"
			errMsg = err.Error()
			unavailable[op.ID] = true
			sawFailure = true
		} else {
			succeeded++
			if op.Kind == "Conditional" {
				markUntakenBranch(op, result, unavailable, benign, skipMsg)
			}
		}

		results = append(results, OperationResult{
			OperationID: op.ID,
			Kind:        op.Kind,
			Status:      status,
			Error:       errMsg,
			DurationMs:  duration.Milliseconds(),
		})

		if e.Audit != nil {
			e.Audit.Record(AuditEntry{
				ExecutionID: executionID,
				AgentID:     agentID,
				OperationID: op.ID,
				Kind:        op.Kind,
				Status:      status,
				Error:       errMsg,
				DurationMs:  duration.Milliseconds(),
			})
		}
	}

	overall := "success"
	switch {
	case len(order) > 0 && succeeded == 0:
		overall = "error"
	case sawFailure:
		overall = "partial_success"
	}

	return &Result{
		ExecutionID: executionID,
		Status:      overall,
		Operations:  results,
		DataModel:   ec.dataModel,
	}, nil
}

// markUntakenBranch records the Conditional's non-taken ifTrue/ifFalse
// target as a benign skip, so Execute's loop marks it (and anything nested
// inside it) "skipped" instead of dispatching it.
func markUntakenBranch(op Operation, result any, unavailable, benign map[string]bool, skipMsg map[string]string) {
	m, ok := result.(map[string]any)
	if !ok {
		return
	}
	taken, _ := m["branch"].(string)
	untakenKey := "ifFalse"
	if taken == "ifFalse" {
		untakenKey = "ifTrue"
	}
	untaken := getString(op.Config, untakenKey)
	if untaken == "" {
		return
	}
	unavailable[untaken] = true
	benign[untaken] = true
	skipMsg[untaken] = "branch not taken"
}

func dependsOnFailure(op Operation, failed map[string]bool) bool {
	for _, dep := range dependenciesOf(op) {
		if failed[dep] {
			return true
		}
	}
	return false
}

// dispatch runs the execution-controls pipeline around a single operation:
// rate limit check, cache lookup, credential injection, the handler itself
// (retry-wrapped for remote kinds), and a cache write on success.
func (e *Engine) dispatch(ec *execContext, op Operation) (any, error) {
	if e.RateLimiter != nil {
		decision := e.RateLimiter.Check(ec.agentID, op.Kind)
		if !decision.Allowed {
			return nil, apierrors.New(apierrors.CategoryExecution, fmt.Sprintf("rate limit exceeded: %s", decision.Reason)).WithOperation(op.ID)
		}
	}

	var cacheKey string
	if e.Cache != nil {
		if fp, err := controls.Fingerprint(op.Kind, op.Config); err == nil {
			cacheKey = fp
			var cached any
			if e.Cache.Get(ec.ctx, cacheKey, &cached) {
				setOutput(ec.dataModel, op.Config, cached)
				return cached, nil
			}
		}
	}

	config := op.Config
	if e.Vault != nil {
		injected, err := e.Vault.Inject(config)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CategoryAuthentication, "credential injection failed", err).WithOperation(op.ID)
		}
		config = injected
	}
	op.Config = config

	var result any
	var err error
	if remoteKinds[op.Kind] && e.Retrier != nil {
		err = e.Retrier.Do(ec.ctx, func(ctx context.Context, attempt int) (controls.Retryable, error) {
			innerCtx := *ec
			innerCtx.ctx = ctx
			res, handleErr := e.handle(&innerCtx, op)
			if handleErr == nil {
				result = res
				return controls.Retryable{}, nil
			}
			retryable := controls.Retryable{Err: handleErr}
			if se, ok := asStructuredError(handleErr); ok {
				retryable.HTTPStatus = se.HTTPStatus
			}
			return retryable, handleErr
		})
	} else {
		result, err = e.handle(ec, op)
	}

	if err != nil {
		return nil, err
	}

	if e.Cache != nil && cacheKey != "" {
		_ = e.Cache.Set(ec.ctx, cacheKey, op.Kind, result)
	}

	return result, nil
}

func asStructuredError(err error) (*apierrors.StructuredError, bool) {
	se, ok := err.(*apierrors.StructuredError)
	return se, ok
}
