// Package httpx provides HTTP response utilities.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorBody is the payload nested under "error" in every error response.
type ErrorBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Method     string `json:"method"`
}

// ErrorEnvelope wraps ErrorBody.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends the error envelope for r.
func Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := ErrorBody{
		Message:    message,
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if r != nil {
		body.Method = r.Method
		if r.URL != nil {
			body.Path = r.URL.Path
		}
	}
	JSON(w, status, ErrorEnvelope{Error: body})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
