package executor

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// extractHeaderValue evaluates a "header:<Name>:<regex>" extraction rule
// against the captured response headers. With a capturing group the first
// group is returned, otherwise the whole match.
func extractHeaderValue(headers map[string]string, expr string) (string, error) {
	parts := strings.SplitN(expr, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("invalid header extraction expression, want 'header:<Name>:<regex>'")
	}
	headerName, pattern := parts[1], parts[2]

	value, ok := headers[headerName]
	if !ok {
		// Captured headers keep their original casing; fall back to the
		// canonical form before giving up.
		value, ok = headers[http.CanonicalHeaderKey(headerName)]
	}
	if !ok {
		return "", fmt.Errorf("header '%s' not found in response", headerName)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid regex '%s': %w", pattern, err)
	}
	match := re.FindStringSubmatch(value)
	if match == nil {
		return "", fmt.Errorf("regex '%s' did not match header '%s' value", pattern, headerName)
	}
	if len(match) > 1 {
		return match[1], nil
	}
	return match[0], nil
}
