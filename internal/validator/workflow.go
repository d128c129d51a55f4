package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a2e-systems/a2e-exec/internal/registry"
)

// Level controls which severities are surfaced by Validate.
type Level string

const (
	LevelStrict   Level = "strict"
	LevelModerate Level = "moderate"
	LevelLenient  Level = "lenient"
)

// Severity classifies an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding produced by Validate.
type Issue struct {
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	OperationID string   `json:"operationId,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// rawOperation is the wire shape of one operation entry inside an
// operationUpdate frame: {"id": ..., "operation": {"<Kind>": {...}}}.
type rawOperation struct {
	ID        string                     `json:"id"`
	Operation map[string]json.RawMessage `json:"operation"`
}

type operationUpdateFrame struct {
	WorkflowID string         `json:"workflowId"`
	Operations []rawOperation `json:"operations"`
}

type envelope struct {
	OperationUpdate *operationUpdateFrame `json:"operationUpdate"`
}

// parsedOp is a rawOperation flattened to its single kind and decoded
// config for the checks below to walk.
type parsedOp struct {
	id     string
	kind   string
	config map[string]any
}

// VaultMetadataLookup is the subset of the credential vault the validator
// needs: whether a referenced credential exists at all.
type VaultMetadataLookup interface {
	Metadata(id string) (any, bool)
}

// AuthzLookup is the subset of the authorization store the validator needs
// to check an agent's permitted APIs and credentials.
type AuthzLookup interface {
	IsAPIAllowed(agentID, apiID string) bool
	IsCredentialAllowed(agentID, credentialID string) bool
}

// Validator runs the ordered structure/dependency/type/API/credential/
// pattern checks against a workflow's JSONL frames before it reaches the
// engine.
type Validator struct {
	Registry *registry.Registry
	Vault    VaultMetadataLookup
	Authz    AuthzLookup
	Level    Level
}

// New builds a Validator at the given level. Vault and Authz may be nil,
// in which case the credential and permission checks they gate are
// skipped, matching the original system's "only validate what's wired"
// behavior.
func New(reg *registry.Registry, vault VaultMetadataLookup, authz AuthzLookup, level Level) *Validator {
	return &Validator{Registry: reg, Vault: vault, Authz: authz, Level: level}
}

// parseWorkflow extracts every operation from the operationUpdate frames in
// workflowJSONL. Later frames overwrite earlier ones for the same id,
// matching the incremental nature of workflow submission.
func parseWorkflow(workflowJSONL string) ([]parsedOp, error) {
	byID := make(map[string]parsedOp)
	var order []string

	for _, line := range strings.Split(strings.TrimSpace(workflowJSONL), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			continue
		}
		if env.OperationUpdate == nil {
			continue
		}
		for _, raw := range env.OperationUpdate.Operations {
			if len(raw.Operation) != 1 {
				// Surfaced as a structure error below; still record the id
				// so dependency checks have something to reference.
				if _, exists := byID[raw.ID]; !exists {
					order = append(order, raw.ID)
				}
				byID[raw.ID] = parsedOp{id: raw.ID}
				continue
			}
			var kind string
			var body json.RawMessage
			for k, v := range raw.Operation {
				kind, body = k, v
			}
			var config map[string]any
			if err := json.Unmarshal(body, &config); err != nil {
				config = map[string]any{}
			}
			if _, exists := byID[raw.ID]; !exists {
				order = append(order, raw.ID)
			}
			byID[raw.ID] = parsedOp{id: raw.ID, kind: kind, config: config}
		}
	}

	ops := make([]parsedOp, 0, len(order))
	for _, id := range order {
		ops = append(ops, byID[id])
	}
	return ops, nil
}

// Validate runs every check in order and filters the result by v.Level.
func (v *Validator) Validate(workflowJSONL string, agentID string) (bool, []Issue) {
	ops, _ := parseWorkflow(workflowJSONL)

	if len(ops) == 0 {
		return false, []Issue{{Severity: SeverityError, Message: "workflow contains no operations"}}
	}

	var issues []Issue
	issues = append(issues, validateStructure(ops)...)
	issues = append(issues, validateDependencies(ops)...)
	issues = append(issues, validateDataTypes(ops)...)
	if v.Registry != nil {
		issues = append(issues, v.validateAPICompatibility(ops, agentID)...)
	}
	if v.Vault != nil && v.Authz != nil && agentID != "" {
		issues = append(issues, v.validateCredentials(ops, agentID)...)
	}
	issues = append(issues, validatePatterns(ops)...)

	issues = filterByLevel(issues, v.Level)

	valid := true
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			valid = false
			break
		}
	}
	return valid, issues
}

func filterByLevel(issues []Issue, level Level) []Issue {
	switch level {
	case LevelModerate, "":
		out := issues[:0:0]
		for _, i := range issues {
			if i.Severity == SeverityError {
				out = append(out, i)
			}
		}
		return out
	case LevelLenient:
		out := issues[:0:0]
		for _, i := range issues {
			if i.Severity == SeverityError && strings.Contains(strings.ToLower(i.Message), "will fail") {
				out = append(out, i)
			}
		}
		return out
	default: // LevelStrict: keep everything, including warnings
		return issues
	}
}

func validateStructure(ops []parsedOp) []Issue {
	var issues []Issue
	seen := map[string]bool{}

	for _, op := range ops {
		if op.id == "" {
			issues = append(issues, Issue{Severity: SeverityError, Message: "operation missing required 'id' field"})
			continue
		}
		if seen[op.id] {
			issues = append(issues, Issue{Severity: SeverityError, Message: fmt.Sprintf("Duplicate operation ID: %s", op.id), OperationID: op.id})
		}
		seen[op.id] = true

		if op.kind == "" {
			issues = append(issues, Issue{Severity: SeverityError, Message: fmt.Sprintf("operation '%s' missing 'operation' field", op.id), OperationID: op.id})
		}
	}
	return issues
}

func inputPathTarget(config map[string]any) (string, bool) {
	raw, ok := config["inputPath"].(string)
	if !ok || !strings.HasPrefix(raw, "/workflow/") {
		return "", false
	}
	parts := strings.Split(raw, "/")
	return parts[len(parts)-1], true
}

func validateDependencies(ops []parsedOp) []Issue {
	var issues []Issue
	ids := map[string]bool{}
	for _, op := range ops {
		if op.id != "" {
			ids[op.id] = true
		}
	}

	for _, op := range ops {
		if op.config == nil {
			continue
		}
		if target, ok := inputPathTarget(op.config); ok && !ids[target] {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("operation '%s' references non-existent operation '%s' in inputPath", op.id, target),
				OperationID: op.id,
				Suggestion:  fmt.Sprintf("ensure operation '%s' exists before '%s'", target, op.id),
			})
		}

		if op.kind == "Conditional" {
			for _, field := range []string{"ifTrue", "ifFalse"} {
				if ref, ok := op.config[field].(string); ok && ref != "" && !ids[ref] {
					issues = append(issues, Issue{
						Severity:    SeverityError,
						Message:     fmt.Sprintf("conditional operation '%s' references non-existent operation '%s'", op.id, ref),
						OperationID: op.id,
					})
				}
			}
		}
	}
	return issues
}

func validateDataTypes(ops []parsedOp) []Issue {
	var issues []Issue
	outputShape := map[string]string{}

	for _, op := range ops {
		switch {
		case op.kind == "ApiCall":
			outputShape[op.id] = "any"
		case registry.ProducesArray(op.kind):
			outputShape[op.id] = "array"
		default:
			outputShape[op.id] = "unknown"
		}
	}

	for _, op := range ops {
		if op.config == nil || !registry.RequiresArrayInput(op.kind) {
			continue
		}
		source, ok := inputPathTarget(op.config)
		if !ok {
			continue
		}
		shape, known := outputShape[source]
		if known && shape != "array" && shape != "any" {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("%s operation '%s' requires array input, but '%s' produces '%s'", op.kind, op.id, source, shape),
				OperationID: op.id,
				Suggestion:  fmt.Sprintf("ensure '%s' produces an array, or insert a TransformData step", source),
			})
		}
	}
	return issues
}

func (v *Validator) validateAPICompatibility(ops []parsedOp, agentID string) []Issue {
	var issues []Issue

	for _, op := range ops {
		if op.kind != "ApiCall" || op.config == nil {
			continue
		}
		rawURL, _ := op.config["url"].(string)
		method, _ := op.config["method"].(string)
		if method == "" {
			method = "GET"
		}
		if rawURL == "" {
			issues = append(issues, Issue{Severity: SeverityError, Message: fmt.Sprintf("ApiCall operation '%s' missing required 'url'", op.id), OperationID: op.id})
			continue
		}

		host, path := splitURL(rawURL)
		api, ok := v.Registry.FindAPIByHost(host)
		if !ok {
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Message:     fmt.Sprintf("ApiCall operation '%s' uses URL from unregistered API domain: %s", op.id, host),
				OperationID: op.id,
				Suggestion:  "verify the API is registered in the capability registry",
			})
			continue
		}

		if agentID != "" && v.Authz != nil && !v.Authz.IsAPIAllowed(agentID, api.ID) {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("agent '%s' does not have permission to use API '%s'", agentID, api.ID),
				OperationID: op.id,
				Suggestion:  fmt.Sprintf("request access to '%s' or use a different API", api.ID),
			})
		}

		if !registry.EndpointDeclared(api, method, path) {
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Message:     fmt.Sprintf("endpoint %s %s not found in API '%s' definition", method, path, api.ID),
				OperationID: op.id,
				Suggestion:  "verify the endpoint exists or add it to the API definition",
			})
		}
	}
	return issues
}

func splitURL(raw string) (host, path string) {
	rest := raw
	if idx := strings.Index(rest, "://"); idx != -1 {
		rest = rest[idx+3:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return rest, ""
	}
	return rest[:slash], rest[slash:]
}

func (v *Validator) validateCredentials(ops []parsedOp, agentID string) []Issue {
	var issues []Issue

	for _, op := range ops {
		if op.kind != "ApiCall" || op.config == nil {
			continue
		}
		headers, _ := op.config["headers"].(map[string]any)
		for headerKey, headerValue := range headers {
			ref, ok := headerValue.(map[string]any)
			if !ok {
				continue
			}
			credRef, ok := ref["credentialRef"].(map[string]any)
			if !ok {
				continue
			}
			credID, _ := credRef["id"].(string)
			if credID == "" {
				issues = append(issues, Issue{
					Severity:    SeverityError,
					Message:     fmt.Sprintf("ApiCall operation '%s' has invalid credential reference in header '%s'", op.id, headerKey),
					OperationID: op.id,
				})
				continue
			}

			if _, exists := v.Vault.Metadata(credID); !exists {
				issues = append(issues, Issue{
					Severity:    SeverityError,
					Message:     fmt.Sprintf("credential '%s' referenced in operation '%s' does not exist", credID, op.id),
					OperationID: op.id,
					Suggestion:  fmt.Sprintf("register credential '%s' in the vault", credID),
				})
				continue
			}

			if !v.Authz.IsCredentialAllowed(agentID, credID) {
				issues = append(issues, Issue{
					Severity:    SeverityError,
					Message:     fmt.Sprintf("agent '%s' does not have permission to use credential '%s'", agentID, credID),
					OperationID: op.id,
					Suggestion:  fmt.Sprintf("request access to credential '%s'", credID),
				})
			}
		}
	}
	return issues
}

func validatePatterns(ops []parsedOp) []Issue {
	var issues []Issue
	ids := map[string]bool{}
	byID := map[string]parsedOp{}
	for _, op := range ops {
		if op.id != "" {
			ids[op.id] = true
			byID[op.id] = op
		}
	}

	for _, op := range ops {
		if op.kind != "Loop" || op.config == nil {
			continue
		}
		if rawOps, ok := op.config["operations"].([]any); ok {
			for _, v := range rawOps {
				loopOpID, _ := v.(string)
				if loopOpID != "" && !ids[loopOpID] {
					issues = append(issues, Issue{
						Severity:    SeverityError,
						Message:     fmt.Sprintf("loop operation '%s' references non-existent operation '%s'", op.id, loopOpID),
						OperationID: op.id,
					})
				}
			}
		}
		if maxIterations, ok := op.config["maxIterations"].(float64); !ok || maxIterations <= 0 {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Message:     fmt.Sprintf("loop operation '%s' has no declared bound and may run indefinitely", op.id),
				OperationID: op.id,
				Suggestion:  "set maxIterations to a positive bound on the loop's input array",
			})
		}
	}

	for _, op := range ops {
		if op.kind != "FilterData" || op.config == nil {
			continue
		}
		source, ok := inputPathTarget(op.config)
		if !ok {
			continue
		}
		if sourceOp, exists := byID[source]; exists && sourceOp.kind == "ApiCall" {
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Message:     fmt.Sprintf("FilterData operation '%s' may fail if API call '%s' returns an empty array", op.id, source),
				OperationID: op.id,
				Suggestion:  "add a check for empty data before filtering",
			})
		}
	}

	return issues
}
