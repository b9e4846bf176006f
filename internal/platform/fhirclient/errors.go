package fhirclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

var (
	// ErrIDRequired is returned by Update for a resource without an id.
	ErrIDRequired = errors.New("resource ID is required for update operation")
	// ErrReferenceRequired is returned by FollowReference for an empty reference.
	ErrReferenceRequired = errors.New("reference is required")
	// ErrNoServer is returned when no server URL is configured.
	ErrNoServer = errors.New("no FHIR server configured")
)

// ServerError is a failed exchange with the FHIR server. StatusCode is 0
// when the server could not be reached.
type ServerError struct {
	StatusCode int
	Message    string
	Outcome    *fhir.OperationOutcome
	Err        error
}

func (e *ServerError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("FHIR server error %d: %s", e.StatusCode, e.Message)
}

func (e *ServerError) Unwrap() error { return e.Err }

// NotFound reports whether the server answered 404.
func (e *ServerError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsNotFound reports whether err is a 404 from the FHIR server.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.NotFound()
}

// statusMessage is the user-facing text for a status code.
func statusMessage(code int) string {
	switch code {
	case 0:
		return "Unable to connect to FHIR server. Please check your network connection."
	case http.StatusBadRequest:
		return "Bad request. Please check your search parameters."
	case http.StatusUnauthorized:
		return "Unauthorized access. Please check your credentials."
	case http.StatusForbidden:
		return "Access forbidden. You do not have permission to access this resource."
	case http.StatusNotFound:
		return "Resource not found."
	case http.StatusInternalServerError:
		return "Internal server error. Please try again later."
	case http.StatusServiceUnavailable:
		return "Service unavailable. The FHIR server is temporarily down."
	}
	return fmt.Sprintf("HTTP %d: %s", code, http.StatusText(code))
}

// newServerError builds the error for a non-2xx response. An
// OperationOutcome body with a readable first issue overrides the
// status message.
func newServerError(code int, body []byte) *ServerError {
	se := &ServerError{StatusCode: code, Message: statusMessage(code)}
	var outcome fhir.OperationOutcome
	if json.Unmarshal(body, &outcome) == nil && outcome.ResourceType == "OperationOutcome" {
		se.Outcome = &outcome
		if len(outcome.Issue) > 0 {
			if text := issueText(outcome.Issue[0]); text != "" {
				se.Message = text
			}
		}
	}
	return se
}

func issueText(issue fhir.OperationOutcomeIssue) string {
	if issue.Details != nil && issue.Details.Text != "" {
		return issue.Details.Text
	}
	return issue.Diagnostics
}

func connectionError(err error) *ServerError {
	return &ServerError{Message: statusMessage(0), Err: err}
}
