package definition

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a chain definition from YAML. Decode failures come back as
// a *ValidationError; semantic validation is a separate step.
func ParseYAML(data []byte) (*ChainDefinition, error) {
	var def ChainDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, NewValidationError([]string{fmt.Sprintf("- failed to parse chain YAML: %v", err)})
	}
	return &def, nil
}

// ParseJSON decodes a chain definition from JSON.
func ParseJSON(data []byte) (*ChainDefinition, error) {
	var def ChainDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, NewValidationError([]string{fmt.Sprintf("- failed to parse chain JSON: %v", err)})
	}
	return &def, nil
}

// Parse decodes a chain definition, choosing the codec from the content type.
// An empty or unrecognized content type falls back to YAML, which also accepts
// JSON input.
func Parse(data []byte, contentType string) (*ChainDefinition, error) {
	if strings.Contains(contentType, "json") {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}
