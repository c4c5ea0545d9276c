package panel

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnavailable is returned when the panel integration is not configured.
var ErrUnavailable = errors.New("panel: not configured")

// ErrNotFound indicates the remote resource does not exist.
var ErrNotFound = errors.New("panel: not found")

// APIError is the single structured error produced at the panel boundary.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("panel: %s (status %d): %s", e.Code, e.Status, e.Detail)
	}
	return fmt.Sprintf("panel: status %d: %s", e.Status, e.Detail)
}

type wireError struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// htmlTitle reduces an HTML error body to its title text. Proxies in front
// of the panel answer with full error pages; the title is the only part
// worth surfacing.
func htmlTitle(body []byte) string {
	match := titleRe.FindSubmatch(body)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(string(match[1]))
}
