package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

var (
	// ErrNotConfigured is returned when the client has no base URL.
	ErrNotConfigured = errors.New("backend: client not configured")
	// ErrUnavailable wraps transport failures and open-circuit refusals.
	ErrUnavailable = errors.New("backend: unavailable")
)

// APIError carries a non-2xx response from the inventory API unchanged.
type APIError struct {
	Operation   string
	Status      int
	ContentType string
	Body        []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("backend: %s returned %d", e.Operation, e.Status)
}

// NotFound reports whether the backend answered 404.
func (e *APIError) NotFound() bool { return e != nil && e.Status == http.StatusNotFound }

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// WriteError renders a backend failure as-is and reports whether err was one.
// JSON bodies are relayed verbatim; anything else is wrapped in the error envelope.
func WriteError(w http.ResponseWriter, err error) bool {
	if errors.Is(err, ErrUnavailable) {
		common.JSONError(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE", "inventory backend unavailable", nil)
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr == nil {
		return false
	}
	body := bytes.TrimSpace(apiErr.Body)
	if len(body) > 0 && json.Valid(body) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.Status)
		_, _ = w.Write(body)
		return true
	}
	message := string(body)
	if message == "" {
		message = http.StatusText(apiErr.Status)
	}
	common.JSONError(w, apiErr.Status, "BACKEND_ERROR", message, nil)
	return true
}
