// Package httpx carries the JSON response helpers shared by every handler,
// with errors rendered as RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
)

// Request bodies above this size are rejected during decode.
const maxBodyBytes = 1 << 20

// ProblemDetail is the RFC7807 error envelope.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes the request body into target, capped at maxBodyBytes.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
}
