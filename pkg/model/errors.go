package model

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Messages holds an error message that the backend sends either as a single
// string or as a list of validation messages.
type Messages []string

// UnmarshalJSON accepts a string, a list of strings, or null.
func (m *Messages) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*m = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*m = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*m = Messages{s}
	return nil
}

// MarshalJSON writes a single message as a plain string.
func (m Messages) MarshalJSON() ([]byte, error) {
	if len(m) == 1 {
		return json.Marshal(m[0])
	}
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(m))
}

// String joins the messages with "; ".
func (m Messages) String() string {
	return strings.Join(m, "; ")
}

// ErrorBody is the JSON error document the library API returns on failure.
type ErrorBody struct {
	StatusCode int      `json:"statusCode"`
	Message    Messages `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// NewErrorBody builds an ErrorBody for status with the standard reason phrase.
func NewErrorBody(status int, msgs ...string) ErrorBody {
	return ErrorBody{StatusCode: status, Message: msgs, Error: http.StatusText(status)}
}

// APIError is a non-2xx response from the library API.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d", e.Status)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// ParseAPIError builds an APIError from a response status and body. The
// message comes from the body's "message" field, then "error", then the
// status text.
func ParseAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Body: body}
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := eb.Message.String(); msg != "" {
			e.Message = msg
		} else if eb.Error != "" {
			e.Message = eb.Error
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// InvalidTransitionError is returned when a status change is not allowed.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition: %s -> %s (id %s)", e.Entity, e.From, e.To, e.ID)
}
