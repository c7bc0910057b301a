package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const defaultErrorMessage = "An unexpected error occurred"

var (
	ErrNoToken = errors.New("no token received from the API")
)

// Error is a failed backend call. Status falls back to 500 and Message to a
// generic text when the backend gives neither.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by err, or 500
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the user-facing message carried by err
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return defaultErrorMessage
}

func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type errorBody struct {
	Error  string              `json:"error"`
	Errors map[string][]string `json:"errors"`
}

// responseError builds an Error from a non-2xx response
func responseError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &Error{Status: resp.StatusCode, Message: defaultErrorMessage}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		case len(parsed.Errors) > 0:
			apiErr.Message = flattenErrors(parsed.Errors)
		}
	}
	return apiErr
}

func flattenErrors(fieldErrors map[string][]string) string {
	parts := make([]string, 0, len(fieldErrors))
	for field, msgs := range fieldErrors {
		for _, msg := range msgs {
			parts = append(parts, field+" "+msg)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
