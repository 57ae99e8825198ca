// Package registry holds chain definitions and exposes the management
// operations: create, list, get, delete, execute. Definitions are validated
// structurally and against their dependency graph at registration, so
// execution never encounters a malformed chain.
package registry

import (
	"context"
	"fmt"
	"sync"

	"chainforge/internal/definition"
	"chainforge/internal/graph"
	"chainforge/internal/logging"
	"chainforge/internal/scheduler"

	"github.com/google/uuid"
)

// NotFoundError reports a lookup for a chain id that is not registered.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("chain '%s' not found", e.ID)
}

// Summary is the listing view of a registered chain.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	LinkCount   int      `json:"linkCount"`
	Enabled     bool     `json:"enabled"`
	Tags        []string `json:"tags,omitempty"`
}

// ChainRunner executes a registered definition. *scheduler.Scheduler
// satisfies it; tests substitute mocks.
type ChainRunner interface {
	Run(ctx context.Context, def *definition.ChainDefinition, overrides map[string]any) (*scheduler.ExecutionResult, error)
}

// Registry is the in-memory chain store. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	chains   map[string]*definition.ChainDefinition
	order    []string // ids in creation order, for stable listings
	lastRuns map[string]*scheduler.ExecutionResult
	runner   ChainRunner
	defaults definition.ChainConfig
}

// New creates a registry. The defaults fill config fields a definition leaves
// unset at registration time.
func New(runner ChainRunner, defaults definition.ChainConfig) *Registry {
	return &Registry{
		chains:   make(map[string]*definition.ChainDefinition),
		lastRuns: make(map[string]*scheduler.ExecutionResult),
		runner:   runner,
		defaults: defaults,
	}
}

// Create validates and registers a definition, returning its id. A definition
// without an id is assigned a fresh UUID. Validation covers structural rules
// and the dependency graph (unknown references, cycles); any violation
// rejects the whole definition.
func (r *Registry) Create(def *definition.ChainDefinition) (string, error) {
	if def.Config.MaxChainLength <= 0 {
		def.Config.MaxChainLength = r.defaults.MaxChainLength
	}
	if def.Config.GlobalTimeoutSecs <= 0 {
		def.Config.GlobalTimeoutSecs = r.defaults.GlobalTimeoutSecs
	}
	def.ApplyDefaults()

	if err := definition.Validate(def); err != nil {
		return "", err
	}
	if _, err := graph.Build(def.Links); err != nil {
		return "", err
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chains[def.ID]; exists {
		return "", definition.NewValidationError([]string{
			fmt.Sprintf("- id: chain '%s' already exists", def.ID),
		})
	}
	r.chains[def.ID] = def
	r.order = append(r.order, def.ID)
	logging.Logf(logging.Info, "Registered chain '%s' (%s) with %d links", def.Name, def.ID, len(def.Links))
	return def.ID, nil
}

// List returns summaries of all registered chains in creation order.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summaries := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		def := r.chains[id]
		summaries = append(summaries, Summary{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			LinkCount:   len(def.Links),
			Enabled:     def.IsEnabled(),
			Tags:        def.Tags,
		})
	}
	return summaries
}

// Get returns a chain's definition and its most recent execution record, if
// any.
func (r *Registry) Get(id string) (*definition.ChainDefinition, *scheduler.ExecutionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.chains[id]
	if !ok {
		return nil, nil, &NotFoundError{ID: id}
	}
	return def, r.lastRuns[id], nil
}

// Delete removes a chain and its stored execution record.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chains[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(r.chains, id)
	delete(r.lastRuns, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	logging.Logf(logging.Info, "Deleted chain '%s'", id)
	return nil
}

// Execute runs a registered chain. Overrides are seeded into the execution's
// variable store after the definition's own variables. The resulting record
// is stored as the chain's last execution and returned. A disabled chain
// returns a *scheduler.ChainDisabledError and stores nothing.
func (r *Registry) Execute(ctx context.Context, id string, overrides map[string]any) (*scheduler.ExecutionResult, error) {
	r.mu.RLock()
	def, ok := r.chains[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	result, err := r.runner.Run(ctx, def, overrides)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// The chain may have been deleted while it was running; drop the record
	// in that case.
	if _, still := r.chains[id]; still {
		r.lastRuns[id] = result
	}
	r.mu.Unlock()
	return result, nil
}
