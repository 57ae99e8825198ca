package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chainforge/internal/definition"
	"chainforge/internal/registry"
	"chainforge/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocking Infrastructure ---

type stubRunner struct {
	result *scheduler.ExecutionResult
	err    error
}

func (s *stubRunner) Run(_ context.Context, def *definition.ChainDefinition, _ map[string]any) (*scheduler.ExecutionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &scheduler.ExecutionResult{ChainID: def.ID, Status: scheduler.StatusCompleted}, nil
}

func newTestServer(runner registry.ChainRunner) (http.Handler, *registry.Registry) {
	reg := registry.New(runner, definition.ChainConfig{
		MaxChainLength:    definition.DefaultMaxChainLength,
		GlobalTimeoutSecs: definition.DefaultGlobalTimeoutSecs,
	})
	return NewHandler(reg), reg
}

func doRequest(t *testing.T, handler http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const validChainYAML = `
name: smoke
links:
  - request:
      id: ping
      url: https://api.test/ping
`

// --- Test Functions ---

func TestHealthz(t *testing.T) {
	handler, _ := newTestServer(&stubRunner{})
	rec := doRequest(t, handler, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateChain(t *testing.T) {
	handler, _ := newTestServer(&stubRunner{})

	t.Run("YAML Body", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/chains", "application/yaml", validChainYAML)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.NotEmpty(t, created["id"])
	})

	t.Run("JSON Body", func(t *testing.T) {
		body := `{"id":"json-chain","name":"j","links":[{"request":{"id":"a","url":"https://x.test"}}]}`
		rec := doRequest(t, handler, http.MethodPost, "/chains", "application/json", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "json-chain")
	})

	t.Run("Validation Failure", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/chains", "application/yaml", "name: empty\nlinks: []\n")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "validation_failed")
	})

	t.Run("Dependency Cycle", func(t *testing.T) {
		body := `{"name":"c","links":[
			{"request":{"id":"a","url":"https://x.test","dependsOn":["b"]}},
			{"request":{"id":"b","url":"https://x.test","dependsOn":["a"]}}]}`
		rec := doRequest(t, handler, http.MethodPost, "/chains", "application/json", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "dependency_cycle")
	})
}

func TestListAndGetChains(t *testing.T) {
	handler, reg := newTestServer(&stubRunner{})
	def := &definition.ChainDefinition{
		ID:   "listed",
		Name: "listed chain",
		Links: []definition.Link{
			{Request: definition.RequestSpec{ID: "a", URL: "https://x.test"}},
		},
	}
	_, err := reg.Create(def)
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodGet, "/chains", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Chains []registry.Summary `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Chains, 1)
	assert.Equal(t, "listed", listing.Chains[0].ID)
	assert.Equal(t, 1, listing.Chains[0].LinkCount)

	rec = doRequest(t, handler, http.MethodGet, "/chains/listed", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"definition"`)
	assert.Contains(t, rec.Body.String(), `"lastExecution":null`)

	rec = doRequest(t, handler, http.MethodGet, "/chains/ghost", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "chain_not_found")
}

func TestDeleteChain(t *testing.T) {
	handler, reg := newTestServer(&stubRunner{})
	_, err := reg.Create(&definition.ChainDefinition{
		ID:    "doomed",
		Name:  "doomed",
		Links: []definition.Link{{Request: definition.RequestSpec{ID: "a", URL: "https://x.test"}}},
	})
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodDelete, "/chains/doomed", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, handler, http.MethodDelete, "/chains/doomed", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteChain(t *testing.T) {
	stub := &stubRunner{result: &scheduler.ExecutionResult{
		ChainID: "runnable",
		Status:  scheduler.StatusCompleted,
		Links:   []scheduler.LinkResult{{LinkID: "a", State: scheduler.StateSucceeded, HTTPStatus: 200}},
	}}
	handler, reg := newTestServer(stub)
	_, err := reg.Create(&definition.ChainDefinition{
		ID:    "runnable",
		Name:  "runnable",
		Links: []definition.Link{{Request: definition.RequestSpec{ID: "a", URL: "https://x.test"}}},
	})
	require.NoError(t, err)

	t.Run("With Variables", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/chains/runnable/execute",
			"application/json", `{"variables":{"env":"prod"}}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var result scheduler.ExecutionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, scheduler.StatusCompleted, result.Status)
		require.Len(t, result.Links, 1)
		assert.Equal(t, scheduler.StateSucceeded, result.Links[0].State)
	})

	t.Run("Empty Body", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/chains/runnable/execute", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Malformed Body", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/chains/runnable/execute", "application/json", "{nope")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown Chain", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/chains/ghost/execute", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExecuteDisabledChain(t *testing.T) {
	stub := &stubRunner{err: &scheduler.ChainDisabledError{ChainID: "off"}}
	handler, reg := newTestServer(stub)
	disabled := false
	_, err := reg.Create(&definition.ChainDefinition{
		ID:      "off",
		Name:    "off",
		Enabled: &disabled,
		Links:   []definition.Link{{Request: definition.RequestSpec{ID: "a", URL: "https://x.test"}}},
	})
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodPost, "/chains/off/execute", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "chain_disabled")
}

func TestCreateChain_ResponseIsJSON(t *testing.T) {
	handler, _ := newTestServer(&stubRunner{})
	rec := doRequest(t, handler, http.MethodPost, "/chains", "application/yaml", validChainYAML)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}
