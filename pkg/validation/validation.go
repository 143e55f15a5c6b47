package validation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	MinThreads = 1
	MaxThreads = 20
)

func ValidateThreadCount(threads int) error {
	if threads < MinThreads || threads > MaxThreads {
		return fmt.Errorf("thread count must be between %d and %d, got %d", MinThreads, MaxThreads, threads)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidatePath accepts a path relative to the API base URL, optionally with a
// query string, or an absolute http(s) URL.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("request path cannot be empty")
	}
	u, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if u.IsAbs() && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid request path %q: scheme must be http or https", path)
	}
	if u.IsAbs() && u.Host == "" {
		return fmt.Errorf("invalid request path %q: missing host", path)
	}
	return nil
}

// ValidateJSONBody checks that a request body is well-formed JSON. An empty
// body is allowed.
func ValidateJSONBody(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	if !json.Valid(body) {
		return fmt.Errorf("request body is not valid JSON")
	}
	return nil
}
