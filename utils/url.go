package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateBaseURL checks that raw is an absolute http(s) origin and returns
// it without a trailing slash.
func ValidateBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("base URL cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid scheme %q: only http and https are supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", raw)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("base URL %q must not carry a query or fragment", raw)
	}

	return strings.TrimRight(parsed.String(), "/"), nil
}

// JoinURL appends an endpoint path (which may carry a query string) to base
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// EndpointPath builds "/a/b/c" from raw segments, escaping each one
func EndpointPath(segments ...string) string {
	var b strings.Builder
	for _, segment := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// WithQuery appends encoded query values to path, skipping empty values
func WithQuery(path string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}
