package registry

import (
	"context"
	"sync"
	"testing"

	"chainforge/internal/definition"
	"chainforge/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocking Infrastructure ---

type mockChainRunner struct {
	mu        sync.Mutex
	runs      int
	lastDef   *definition.ChainDefinition
	lastVars  map[string]any
	result    *scheduler.ExecutionResult
	returnErr error
}

func (m *mockChainRunner) Run(_ context.Context, def *definition.ChainDefinition, overrides map[string]any) (*scheduler.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	m.lastDef = def
	m.lastVars = overrides
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	if m.result != nil {
		return m.result, nil
	}
	return &scheduler.ExecutionResult{ChainID: def.ID, Status: scheduler.StatusCompleted}, nil
}

func testDefaults() definition.ChainConfig {
	return definition.ChainConfig{
		MaxChainLength:    definition.DefaultMaxChainLength,
		GlobalTimeoutSecs: definition.DefaultGlobalTimeoutSecs,
	}
}

func testDefinition(id string) *definition.ChainDefinition {
	return &definition.ChainDefinition{
		ID:          id,
		Name:        "health check",
		Description: "pings the service",
		Tags:        []string{"smoke"},
		Links: []definition.Link{
			{Request: definition.RequestSpec{ID: "ping", URL: "https://api.test/ping"}},
		},
	}
}

// --- Test Functions ---

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := New(&mockChainRunner{}, testDefaults())

	id, err := reg.Create(testDefinition(""))
	require.NoError(t, err)
	assert.NotEmpty(t, id, "a definition without an id gets a generated one")

	def, lastRun, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "health check", def.Name)
	assert.Equal(t, definition.DefaultGlobalTimeoutSecs, def.Config.GlobalTimeoutSecs, "defaults are applied at registration")
	assert.Nil(t, lastRun, "no execution has happened yet")
}

func TestRegistry_CreateRejectsInvalid(t *testing.T) {
	reg := New(&mockChainRunner{}, testDefaults())

	def := testDefinition("bad")
	def.Links = nil
	_, err := reg.Create(def)
	var vErr *definition.ValidationError
	require.ErrorAs(t, err, &vErr)

	// Graph problems are caught at registration too.
	def = testDefinition("cyclic")
	def.Links = []definition.Link{
		{Request: definition.RequestSpec{ID: "a", URL: "https://x.test", DependsOn: []string{"b"}}},
		{Request: definition.RequestSpec{ID: "b", URL: "https://x.test", DependsOn: []string{"a"}}},
	}
	_, err = reg.Create(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")

	assert.Empty(t, reg.List(), "nothing is registered on a failed create")
}

func TestRegistry_CreateRejectsDuplicateID(t *testing.T) {
	reg := New(&mockChainRunner{}, testDefaults())
	_, err := reg.Create(testDefinition("dup"))
	require.NoError(t, err)

	_, err = reg.Create(testDefinition("dup"))
	var vErr *definition.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRegistry_List(t *testing.T) {
	reg := New(&mockChainRunner{}, testDefaults())
	_, err := reg.Create(testDefinition("one"))
	require.NoError(t, err)
	second := testDefinition("two")
	disabled := false
	second.Enabled = &disabled
	_, err = reg.Create(second)
	require.NoError(t, err)

	summaries := reg.List()
	require.Len(t, summaries, 2)
	assert.Equal(t, "one", summaries[0].ID, "listing preserves creation order")
	assert.Equal(t, 1, summaries[0].LinkCount)
	assert.True(t, summaries[0].Enabled)
	assert.Equal(t, []string{"smoke"}, summaries[0].Tags)
	assert.False(t, summaries[1].Enabled)
}

func TestRegistry_Delete(t *testing.T) {
	reg := New(&mockChainRunner{}, testDefaults())
	id, err := reg.Create(testDefinition("gone"))
	require.NoError(t, err)

	require.NoError(t, reg.Delete(id))
	assert.Empty(t, reg.List())

	var notFound *NotFoundError
	_, _, err = reg.Get(id)
	assert.ErrorAs(t, err, &notFound)
	err = reg.Delete(id)
	assert.ErrorAs(t, err, &notFound)
}

func TestRegistry_Execute(t *testing.T) {
	runner := &mockChainRunner{}
	reg := New(runner, testDefaults())
	id, err := reg.Create(testDefinition("exec"))
	require.NoError(t, err)

	overrides := map[string]any{"env": "prod"}
	result, err := reg.Execute(context.Background(), id, overrides)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusCompleted, result.Status)
	assert.Equal(t, overrides, runner.lastVars)
	assert.Equal(t, id, runner.lastDef.ID)

	// The record is retrievable as the chain's last execution.
	_, lastRun, err := reg.Get(id)
	require.NoError(t, err)
	require.NotNil(t, lastRun)
	assert.Equal(t, result, lastRun)
}

func TestRegistry_ExecuteUnknownChain(t *testing.T) {
	reg := New(&mockChainRunner{}, testDefaults())
	_, err := reg.Execute(context.Background(), "ghost", nil)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.ID)
}

func TestRegistry_ExecuteDisabledChainStoresNothing(t *testing.T) {
	runner := &mockChainRunner{returnErr: &scheduler.ChainDisabledError{ChainID: "off"}}
	reg := New(runner, testDefaults())
	id, err := reg.Create(testDefinition("off"))
	require.NoError(t, err)

	_, err = reg.Execute(context.Background(), id, nil)
	var disabledErr *scheduler.ChainDisabledError
	require.ErrorAs(t, err, &disabledErr)

	_, lastRun, err := reg.Get(id)
	require.NoError(t, err)
	assert.Nil(t, lastRun)
}
