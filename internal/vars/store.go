// Package vars implements the per-execution variable store. Values may be
// primitive scalars, structured JSON-like data, or full response captures.
// Writes are last-write-wins; names are a single shared namespace per run.
package vars

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Capture is a stored full response: status, headers, and the body (parsed
// JSON when the content type indicated JSON, raw text otherwise).
type Capture struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// Store is the mutable name -> value registry scoped to one chain execution.
// It is safe for concurrent use by links running in parallel.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Seed copies all entries of the given map into the store, overwriting
// existing names.
func (s *Store) Seed(vars map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range vars {
		s.values[name] = value
	}
}

// Set stores a value unconditionally (last-write-wins).
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Get retrieves a stored value by name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[name]
	return value, ok
}

// Snapshot returns a shallow copy of all stored values.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]any, len(s.values))
	for name, value := range s.values {
		copied[name] = value
	}
	return copied
}

// Resolve evaluates a dotted path against the store. The first segment is a
// stored name; remaining segments index into structured data by field name or
// numeric position ("items.0" and "items[0]" both work). A capture exposes the
// sub-namespaces "status", "headers", and "body". Lookup failure is always an
// error, never an empty substitution.
func (s *Store) Resolve(path string) (any, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty variable path")
	}
	root, ok := s.Get(segments[0])
	if !ok {
		return nil, fmt.Errorf("variable '%s' is not defined", segments[0])
	}
	return navigate(root, segments[1:], segments[0])
}

// splitPath tokenizes a dotted path, unpacking bracketed indexes into their
// own segments.
func splitPath(path string) []string {
	var segments []string
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				segments = append(segments, part)
				break
			}
			closing := strings.IndexByte(part, ']')
			if closing < open {
				segments = append(segments, part)
				break
			}
			if open > 0 {
				segments = append(segments, part[:open])
			}
			segments = append(segments, part[open+1:closing])
			part = part[closing+1:]
			if part == "" {
				break
			}
		}
	}
	return segments
}

func navigate(value any, segments []string, traversed string) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}
	seg := segments[0]
	switch v := value.(type) {
	case *Capture:
		switch seg {
		case "status":
			return navigate(v.Status, segments[1:], traversed+"."+seg)
		case "headers":
			return navigate(v.Headers, segments[1:], traversed+"."+seg)
		case "body":
			return navigate(v.Body, segments[1:], traversed+"."+seg)
		default:
			return nil, fmt.Errorf("'%s' is a response capture; expected 'status', 'headers' or 'body', got '%s'", traversed, seg)
		}
	case map[string]any:
		next, ok := v[seg]
		if !ok {
			return nil, fmt.Errorf("field '%s' not found under '%s'", seg, traversed)
		}
		return navigate(next, segments[1:], traversed+"."+seg)
	case map[string]string:
		next, ok := v[seg]
		if !ok {
			return nil, fmt.Errorf("field '%s' not found under '%s'", seg, traversed)
		}
		return navigate(next, segments[1:], traversed+"."+seg)
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("'%s' is a sequence; expected numeric index, got '%s'", traversed, seg)
		}
		if idx < 0 || idx >= len(v) {
			return nil, fmt.Errorf("index %d out of range for '%s' (length %d)", idx, traversed, len(v))
		}
		return navigate(v[idx], segments[1:], traversed+"."+seg)
	default:
		return nil, fmt.Errorf("'%s' is not indexable (segment '%s')", traversed, seg)
	}
}
