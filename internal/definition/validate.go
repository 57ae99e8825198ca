package definition

import (
	"fmt"
	"strings"
)

var (
	knownHTTPMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	knownAuthTypes   = []string{"none", "api_key", "bearer", "basic", "ntlm", "oauth2"}
)

func isValidMethod(method string) bool {
	for _, m := range knownHTTPMethods {
		if method == m {
			return true
		}
	}
	return false
}

func isValidAuthType(authType string) bool {
	for _, a := range knownAuthTypes {
		if strings.ToLower(authType) == a {
			return true
		}
	}
	return false
}

// Validate checks the semantic invariants of a chain definition: link count
// bounds, unique request ids, well-formed requests, and auth/retry settings.
// Dependency resolution and cycle detection are the graph builder's job.
// Returns a *ValidationError listing every problem found.
func Validate(d *ChainDefinition) error {
	var errs []string
	if d.Name == "" {
		errs = append(errs, "- Name: is required")
	}
	if len(d.Links) < 1 {
		errs = append(errs, "- Links: a chain requires at least one link")
	}
	if d.Config.MaxChainLength > 0 && len(d.Links) > d.Config.MaxChainLength {
		errs = append(errs, fmt.Sprintf("- Links: chain length %d exceeds maxChainLength %d",
			len(d.Links), d.Config.MaxChainLength))
	}
	if d.Config.GlobalTimeoutSecs < 0 {
		errs = append(errs, "- Config.GlobalTimeoutSecs: cannot be negative")
	}

	seen := make(map[string]bool, len(d.Links))
	for i, link := range d.Links {
		prefix := fmt.Sprintf("Links[%d]", i)
		id := link.Request.ID
		if id == "" {
			errs = append(errs, fmt.Sprintf("- %s.Request.ID: is required", prefix))
		} else if seen[id] {
			errs = append(errs, fmt.Sprintf("- %s.Request.ID: duplicate request id '%s'", prefix, id))
		}
		seen[id] = true
		errs = append(errs, validateRequest(prefix+".Request", &link.Request)...)
		for varName := range link.Extract {
			if varName == "" {
				errs = append(errs, fmt.Sprintf("- %s.Extract: empty variable name", prefix))
			}
		}
	}

	if d.Auth != nil {
		errs = append(errs, validateAuth("Auth", d.Auth)...)
	}

	if len(errs) > 0 {
		return NewValidationError(errs)
	}
	return nil
}

func validateRequest(prefix string, req *RequestSpec) []string {
	var errs []string
	if req.URL == "" {
		errs = append(errs, fmt.Sprintf("- %s.URL: is required", prefix))
	}
	if req.Method != "" && !isValidMethod(req.Method) {
		errs = append(errs, fmt.Sprintf("- %s.Method: invalid HTTP method '%s'", prefix, req.Method))
	}
	if req.TimeoutSecs < 0 {
		errs = append(errs, fmt.Sprintf("- %s.TimeoutSecs: cannot be negative", prefix))
	}
	for _, code := range req.ExpectedStatus {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Sprintf("- %s.ExpectedStatus: invalid status code %d", prefix, code))
		}
	}
	for _, dep := range req.DependsOn {
		if dep == "" {
			errs = append(errs, fmt.Sprintf("- %s.DependsOn: empty dependency reference", prefix))
		}
		if dep == req.ID {
			errs = append(errs, fmt.Sprintf("- %s.DependsOn: request '%s' cannot depend on itself", prefix, req.ID))
		}
	}
	if req.Retry != nil {
		if req.Retry.MaxAttempts < 1 {
			errs = append(errs, fmt.Sprintf("- %s.Retry.MaxAttempts: must be at least 1", prefix))
		}
		if req.Retry.BackoffSecs < 0 {
			errs = append(errs, fmt.Sprintf("- %s.Retry.BackoffSecs: cannot be negative", prefix))
		}
	}
	return errs
}

func validateAuth(prefix string, auth *AuthConfig) []string {
	var errs []string
	authType := strings.ToLower(auth.Type)
	if auth.Type != "" && !isValidAuthType(authType) {
		errs = append(errs, fmt.Sprintf("- %s.Type: invalid auth type '%s'", prefix, auth.Type))
		return errs
	}
	required := map[string][]string{
		"basic":   {"username", "password"},
		"ntlm":    {"username", "password"},
		"oauth2":  {"client_id", "client_secret", "token_url"},
		"api_key": {"api_key"},
		"bearer":  {"token"},
	}
	if fields, needed := required[authType]; needed {
		if auth.Credentials == nil {
			errs = append(errs, fmt.Sprintf("- %s.Credentials: map is required for auth type '%s'", prefix, authType))
			return errs
		}
		for _, field := range fields {
			if v, ok := auth.Credentials[field]; !ok || v == "" {
				errs = append(errs, fmt.Sprintf("- %s.Credentials: missing or empty required key '%s' for auth type '%s'", prefix, field, authType))
			}
		}
	}
	return errs
}
