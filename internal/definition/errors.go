package definition

import (
	"fmt"
	"strings"
)

// ValidationError reports one or more problems found while validating a chain
// definition at load time. No chain state is created when it is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chain definition validation failed:\n%s", strings.Join(e.Problems, "\n"))
}

// NewValidationError builds a ValidationError from accumulated problem lines.
func NewValidationError(problems []string) *ValidationError {
	return &ValidationError{Problems: problems}
}
