// Package apierrors is the structured error type shared by every component.
//
// A StructuredError carries a fixed category drawn from the taxonomy below
// plus enough context for the response shaper (internal/respond) to build
// the agent-facing failure payload without re-deriving any of it. Handlers
// and engine dispatch code should construct these directly rather than
// returning bare errors, so the category survives all the way to the
// journal and the HTTP response.
package apierrors

import (
	"fmt"
	"net/http"
)

// Category is the error taxonomy used across validation, execution and the
// response shaper.
type Category string

const (
	CategoryAuthentication Category = "Authentication"
	CategoryAuthorization  Category = "Authorization"
	CategoryValidation     Category = "Validation"
	CategoryNetwork        Category = "Network"
	CategoryAPIError       Category = "ApiError"
	CategoryDataError      Category = "DataError"
	CategoryExecution      Category = "Execution"
	CategoryUnknown        Category = "Unknown"
)

// StructuredError is the normalized error shape passed between the engine,
// audit journal and response shaper.
type StructuredError struct {
	Category    Category `json:"category"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	OperationID string   `json:"operationId,omitempty"`
	Recoverable bool     `json:"recoverable"`
	StatusCode  int      `json:"-"`

	// HTTPStatus carries the upstream HTTP status for ApiError, used to
	// bucket suggestions and to decide retryability.
	HTTPStatus int `json:"httpStatus,omitempty"`
}

func (e *StructuredError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Category, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// recoverableFor returns whether a category is recoverable per the fixed
// taxonomy table; ApiError depends on the upstream status.
func recoverableFor(cat Category, httpStatus int) bool {
	switch cat {
	case CategoryValidation, CategoryNetwork, CategoryDataError:
		return true
	case CategoryAPIError:
		return httpStatus == 0 || httpStatus >= 400
	default:
		return false
	}
}

func httpStatusFor(cat Category) int {
	switch cat {
	case CategoryAuthentication:
		return http.StatusUnauthorized
	case CategoryAuthorization:
		return http.StatusForbidden
	case CategoryValidation, CategoryDataError:
		return http.StatusBadRequest
	case CategoryNetwork, CategoryAPIError:
		return http.StatusBadGateway
	case CategoryExecution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// New builds a StructuredError for the given category.
func New(cat Category, message string) *StructuredError {
	return &StructuredError{
		Category:    cat,
		Message:     message,
		Recoverable: recoverableFor(cat, 0),
		StatusCode:  httpStatusFor(cat),
	}
}

// Wrap attaches an underlying error's text as Details.
func Wrap(cat Category, message string, err error) *StructuredError {
	se := New(cat, message)
	if err != nil {
		se.Details = err.Error()
	}
	return se
}

// WithOperation stamps the operation id that produced the error.
func (e *StructuredError) WithOperation(opID string) *StructuredError {
	e.OperationID = opID
	return e
}

// APIErrorFromStatus builds a Category-ApiError StructuredError for a given
// upstream HTTP status, used by the engine's ApiCall handler and the retry
// handler's retryability check.
func APIErrorFromStatus(status int, message string) *StructuredError {
	return &StructuredError{
		Category:    CategoryAPIError,
		Message:     message,
		HTTPStatus:  status,
		Recoverable: recoverableFor(CategoryAPIError, status),
		StatusCode:  http.StatusBadGateway,
	}
}

// retryableHTTPStatus is the fixed set of upstream statuses the retry
// handler treats as worth retrying.
var retryableHTTPStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// IsRetryableHTTPStatus reports whether status is in the retryable set.
func IsRetryableHTTPStatus(status int) bool {
	return retryableHTTPStatus[status]
}

// Suggestions is the static per-category suggestion table. For ApiError the
// caller should additionally consult StatusBucketSuggestions.
var Suggestions = map[Category][]string{
	CategoryAuthentication: {"verify the API key or bearer token is valid and not expired"},
	CategoryAuthorization:  {"request access to this resource from an administrator"},
	CategoryValidation:     {"correct the reported workflow field and resubmit"},
	CategoryNetwork:        {"check connectivity to the target host", "the operation may succeed on retry"},
	CategoryAPIError:       {"inspect the upstream response for details"},
	CategoryDataError:      {"verify the referenced data path exists in the prior operation's output"},
	CategoryExecution:      {"this operation kind does not support retry; review its configuration"},
	CategoryUnknown:        {"contact support with the operation id"},
}

// StatusBucketSuggestions refines ApiError suggestions by status code
// bucket (4xx vs 5xx vs other).
func StatusBucketSuggestions(status int) []string {
	switch {
	case status == http.StatusTooManyRequests:
		return []string{"the caller is being rate limited upstream; back off and retry"}
	case status >= 400 && status < 500:
		return []string{"the request was rejected by the upstream API; check the request shape and credentials"}
	case status >= 500:
		return []string{"the upstream API failed; this will be retried automatically if configured"}
	default:
		return Suggestions[CategoryAPIError]
	}
}
