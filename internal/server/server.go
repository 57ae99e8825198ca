// Package server exposes the chain registry over HTTP. Definitions are
// accepted as JSON or YAML; all responses are JSON.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chainforge/internal/definition"
	"chainforge/internal/graph"
	"chainforge/internal/logging"
	"chainforge/internal/registry"
	"chainforge/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Definitions arrive over the management API; a megabyte is far beyond any
// realistic chain.
const maxDefinitionBytes = 1 << 20

// Server routes management API requests to the registry.
type Server struct {
	registry *registry.Registry
}

// NewHandler builds the management API router around a registry.
func NewHandler(reg *registry.Registry) http.Handler {
	s := &Server{registry: reg}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Route("/chains", func(r chi.Router) {
		r.Post("/", s.createChain)
		r.Get("/", s.listChains)
		r.Route("/{chainID}", func(r chi.Router) {
			r.Get("/", s.getChain)
			r.Delete("/", s.deleteChain)
			r.Post("/execute", s.executeChain)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createChain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	def, err := definition.Parse(body, r.Header.Get("Content-Type"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id, err := s.registry.Create(def)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) listChains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"chains": s.registry.List()})
}

func (s *Server) getChain(w http.ResponseWriter, r *http.Request) {
	def, lastRun, err := s.registry.Get(chi.URLParam(r, "chainID"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"definition":    def,
		"lastExecution": lastRun,
	})
}

func (s *Server) deleteChain(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(chi.URLParam(r, "chainID")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// executeRequest is the optional body of POST /chains/{id}/execute.
type executeRequest struct {
	Variables map[string]any `json:"variables"`
}

func (s *Server) executeChain(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "execute body must be JSON with an optional 'variables' object")
			return
		}
	}
	result, err := s.registry.Execute(r.Context(), chi.URLParam(r, "chainID"), req.Variables)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeFailure maps domain errors onto HTTP statuses and machine-readable
// codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var (
		validationErr *definition.ValidationError
		cycleErr      *graph.CycleError
		unknownDepErr *graph.UnknownDependencyError
		notFoundErr   *registry.NotFoundError
		disabledErr   *scheduler.ChainDisabledError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.As(err, &cycleErr):
		writeError(w, http.StatusUnprocessableEntity, "dependency_cycle", err.Error())
	case errors.As(err, &unknownDepErr):
		writeError(w, http.StatusUnprocessableEntity, "unknown_dependency", err.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, "chain_not_found", err.Error())
	case errors.As(err, &disabledErr):
		writeError(w, http.StatusConflict, "chain_disabled", err.Error())
	default:
		logging.Logf(logging.Error, "Internal error handling request: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Logf(logging.Error, "Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}
