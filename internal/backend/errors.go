package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
)

var (
	// ErrNotFound is returned when a single-row read or a mutation matches no row
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the backend rejects the credentials
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is an error body returned by the auth or data endpoints
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", msg, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.Status)
}

// Is lets callers match APIError against ErrNotFound and ErrUnauthorized
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound || e.Code == "PGRST116"
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// parseAPIError understands both auth error bodies ({"msg"} / {"error",
// "error_description"}) and data error bodies ({"code","message","details","hint"})
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var raw map[string]interface{}
	if err := sonic.Unmarshal(body, &raw); err != nil {
		apiErr.Message = truncate(string(body), 200)
		return apiErr
	}

	for _, key := range []string{"message", "msg", "error_description", "error"} {
		if s, ok := raw[key].(string); ok && s != "" {
			apiErr.Message = s
			break
		}
	}
	for _, key := range []string{"error_code", "code", "error"} {
		if v, ok := raw[key].(string); ok && v != "" && v != apiErr.Message {
			apiErr.Code = v
			break
		}
	}
	if s, ok := raw["details"].(string); ok {
		apiErr.Details = s
	}
	if s, ok := raw["hint"].(string); ok {
		apiErr.Hint = s
	}
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
