// Package template resolves {{chain.<name>.<path>}} placeholders in request
// URLs, headers and bodies against a variable store. Resolution happens
// lazily, at the moment a link is about to execute, since upstream values only
// exist after their producing links run.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"chainforge/internal/vars"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*chain\.([^{}]+?)\s*\}\}`)

// Error reports an unresolvable placeholder. A link with any unresolved
// placeholder never executes its HTTP call.
type Error struct {
	Placeholder string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot resolve placeholder '%s': %v", e.Placeholder, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ResolveString substitutes every placeholder in s with the stringified
// resolved value. Used for URLs and header values.
func ResolveString(s string, store *vars.Store) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	var resolveErr error
	out := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		path := placeholderRe.FindStringSubmatch(match)[1]
		value, err := store.Resolve(strings.TrimSpace(path))
		if err != nil {
			resolveErr = &Error{Placeholder: match, Err: err}
			return match
		}
		return Stringify(value)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

// ResolveValue substitutes placeholders structurally in a body payload. A
// string that is exactly one placeholder resolves to the typed value,
// preserving JSON structure; embedded placeholders are replaced in place as
// text. Maps and slices are resolved recursively (map keys textually).
func ResolveValue(v any, store *vars.Store) (any, error) {
	switch value := v.(type) {
	case string:
		if path, sole := solePlaceholder(value); sole {
			resolved, err := store.Resolve(path)
			if err != nil {
				return nil, &Error{Placeholder: strings.TrimSpace(value), Err: err}
			}
			return resolved, nil
		}
		return ResolveString(value, store)
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, entry := range value {
			resolvedKey, err := ResolveString(key, store)
			if err != nil {
				return nil, err
			}
			resolvedEntry, err := ResolveValue(entry, store)
			if err != nil {
				return nil, err
			}
			out[resolvedKey] = resolvedEntry
		}
		return out, nil
	case []any:
		out := make([]any, len(value))
		for i, entry := range value {
			resolved, err := ResolveValue(entry, store)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// solePlaceholder reports whether s consists of exactly one placeholder, and
// returns its path if so.
func solePlaceholder(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	loc := placeholderRe.FindStringSubmatchIndex(trimmed)
	if loc == nil || loc[0] != 0 || loc[1] != len(trimmed) {
		return "", false
	}
	return strings.TrimSpace(trimmed[loc[2]:loc[3]]), true
}

// Stringify renders a resolved value for textual substitution. Scalars render
// bare; structured values render as compact JSON.
func Stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return value
	case bool, int, int64, float64, uint64:
		return fmt.Sprintf("%v", value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	}
}
