// Package scheduler drives a chain execution: it walks the dependency graph,
// dispatches ready links to the executor (sequentially or in parallel),
// propagates failures to dependents, and enforces the global deadline.
package scheduler

import (
	"context"
	"time"

	"chainforge/internal/definition"
	"chainforge/internal/executor"
	"chainforge/internal/graph"
	"chainforge/internal/httpclient"
	"chainforge/internal/logging"
	"chainforge/internal/vars"
)

// LinkRunner executes a single link. *executor.Executor satisfies it; tests
// substitute mocks.
type LinkRunner interface {
	ExecuteLink(ctx context.Context, link definition.Link, store *vars.Store) executor.Outcome
}

// ExecutorFactory builds the LinkRunner for one chain. The default factory
// derives an HTTP client from the chain's auth and TLS settings.
type ExecutorFactory func(def *definition.ChainDefinition) (LinkRunner, error)

func defaultExecutorFactory(def *definition.ChainDefinition) (LinkRunner, error) {
	client, err := httpclient.NewClient(def.Auth, def.TLSSkipVerify)
	if err != nil {
		return nil, err
	}
	return executor.New(client, def.Auth), nil
}

// Opts allows dependency injection, primarily for testing.
type Opts struct {
	NewExecutor ExecutorFactory
}

// Scheduler runs chain definitions. It holds no per-execution state and is
// safe for concurrent use.
type Scheduler struct {
	newExecutor ExecutorFactory
}

// New creates a Scheduler, filling unset options with defaults.
func New(opts Opts) *Scheduler {
	if opts.NewExecutor == nil {
		opts.NewExecutor = defaultExecutorFactory
	}
	return &Scheduler{newExecutor: opts.NewExecutor}
}

// Run executes a chain definition to completion and returns its execution
// record. Each run gets a fresh variable store seeded from the definition's
// variables, then the per-call overrides. A disabled chain returns a
// *ChainDisabledError and no record. Graph errors (unknown dependency, cycle)
// surface as-is.
func (s *Scheduler) Run(ctx context.Context, def *definition.ChainDefinition, overrides map[string]any) (*ExecutionResult, error) {
	if !def.IsEnabled() {
		return nil, &ChainDisabledError{ChainID: def.ID}
	}
	g, err := graph.Build(def.Links)
	if err != nil {
		return nil, err
	}
	exec, err := s.newExecutor(def)
	if err != nil {
		return nil, err
	}

	store := vars.NewStore()
	store.Seed(def.Variables)
	store.Seed(overrides)

	timeoutSecs := def.Config.GlobalTimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = definition.DefaultGlobalTimeoutSecs
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	logging.Logf(logging.Info, "Executing chain '%s' (%d links, parallel=%v, timeout=%ds)",
		def.Name, len(def.Links), def.Config.EnableParallelExecution, timeoutSecs)

	run := &chainRun{
		def:     def,
		graph:   g,
		store:   store,
		exec:    exec,
		results: make(map[string]*LinkResult, len(def.Links)),
	}
	for _, id := range g.Order {
		run.results[id] = &LinkResult{LinkID: id, State: StatePending}
	}

	startedAt := time.Now()
	if def.Config.EnableParallelExecution {
		run.parallel(runCtx)
	} else {
		run.sequential(runCtx)
	}
	finishedAt := time.Now()

	result := &ExecutionResult{
		ChainID:        def.ID,
		ChainName:      def.Name,
		Status:         run.status(),
		Links:          make([]LinkResult, 0, len(def.Links)),
		Variables:      store.Snapshot(),
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		DurationMillis: finishedAt.Sub(startedAt).Milliseconds(),
	}
	for _, link := range def.Links {
		result.Links = append(result.Links, *run.results[link.Request.ID])
	}
	logging.Logf(logging.Info, "Chain '%s' finished with status %s in %dms",
		def.Name, result.Status, result.DurationMillis)
	return result, nil
}

// chainRun is the mutable state of one execution. The parallel loop confines
// all state mutation to the scheduling goroutine; worker goroutines only
// execute links and report outcomes over a channel.
type chainRun struct {
	def      *definition.ChainDefinition
	graph    *graph.Graph
	store    *vars.Store
	exec     LinkRunner
	results  map[string]*LinkResult
	timedOut bool
}

func (r *chainRun) status() Status {
	if r.timedOut {
		return StatusTimedOut
	}
	for _, res := range r.results {
		if res.State != StateSucceeded {
			return StatusPartiallyFailed
		}
	}
	return StatusCompleted
}

// sequential runs links one at a time in topological order. At most one link
// is ever Running.
func (r *chainRun) sequential(ctx context.Context) {
	for _, id := range r.graph.Order {
		if r.results[id].State.terminal() {
			continue
		}
		if r.timedOut || ctx.Err() != nil {
			r.failForDeadline(id)
			continue
		}
		if prereq, ok := r.unmetPrereq(id); ok {
			r.block(id, prereq)
			continue
		}
		res := r.results[id]
		res.State = StateRunning
		res.StartedAt = time.Now()
		outcome := r.exec.ExecuteLink(ctx, *r.def.LinkByID(id), r.store)
		res.FinishedAt = time.Now()
		r.finalize(id, outcome)
	}
}

// parallel runs every ready link concurrently. Readiness is event-driven:
// a link becomes ready when its last prerequisite succeeds. Worker goroutines
// report back over a channel; the loop keeps draining it after the deadline so
// no goroutine is orphaned.
func (r *chainRun) parallel(ctx context.Context) {
	type doneMsg struct {
		id       string
		outcome  executor.Outcome
		finished time.Time
	}

	unmet := make(map[string]int, len(r.graph.Order))
	var queue []string
	for _, id := range r.graph.Order {
		unmet[id] = len(r.graph.Prereqs[id])
		if unmet[id] == 0 {
			r.results[id].State = StateReady
			queue = append(queue, id)
		}
	}

	done := make(chan doneMsg)
	running := 0
	for {
		if !r.timedOut {
			for _, id := range queue {
				res := r.results[id]
				if res.State != StateReady {
					continue
				}
				res.State = StateRunning
				res.StartedAt = time.Now()
				running++
				go func(id string) {
					outcome := r.exec.ExecuteLink(ctx, *r.def.LinkByID(id), r.store)
					done <- doneMsg{id: id, outcome: outcome, finished: time.Now()}
				}(id)
			}
			queue = queue[:0]
		}
		if running == 0 {
			return
		}

		handle := func(msg doneMsg) {
			running--
			res := r.results[msg.id]
			res.FinishedAt = msg.finished
			r.finalize(msg.id, msg.outcome)
			if res.State != StateSucceeded {
				return
			}
			for _, dep := range r.graph.Dependents[msg.id] {
				unmet[dep]--
				if unmet[dep] == 0 && r.results[dep].State == StatePending {
					r.results[dep].State = StateReady
					queue = append(queue, dep)
				}
			}
		}

		if r.timedOut {
			handle(<-done)
			continue
		}
		select {
		case msg := <-done:
			handle(msg)
		case <-ctx.Done():
			r.timedOut = true
			queue = queue[:0]
			r.sweepForDeadline()
		}
	}
}

// finalize records a link outcome and, on failure, blocks its dependents.
func (r *chainRun) finalize(id string, outcome executor.Outcome) {
	res := r.results[id]
	res.HTTPStatus = outcome.HTTPStatus
	res.Extracted = outcome.Extracted
	if outcome.Succeeded() {
		res.State = StateSucceeded
		logging.Logf(logging.Debug, "Link '%s' succeeded (status %d)", id, outcome.HTTPStatus)
		return
	}
	res.State = StateFailed
	res.Reason = outcome.Reason
	res.Error = outcome.Err.Error()
	logging.Logf(logging.Warning, "Link '%s' failed (%s): %v", id, outcome.Reason, outcome.Err)
	if outcome.Reason == executor.ReasonChainTimeout {
		// Deadline semantics take over: remaining links are timeout
		// casualties, not blocked dependents.
		r.timedOut = true
		r.sweepForDeadline()
		return
	}
	r.blockDependents(id)
}

// sweepForDeadline fails every link that has not started yet. Running links
// are left to report their own outcomes.
func (r *chainRun) sweepForDeadline() {
	for _, id := range r.graph.Order {
		if st := r.results[id].State; st == StatePending || st == StateReady {
			r.failForDeadline(id)
		}
	}
}

// blockDependents marks every transitively dependent non-terminal link as
// Blocked. Only Pending links can be affected: a dependent cannot be Ready or
// Running while a prerequisite is unfinished.
func (r *chainRun) blockDependents(id string) {
	for _, dep := range r.graph.Dependents[id] {
		if r.results[dep].State == StatePending || r.results[dep].State == StateReady {
			r.block(dep, id)
			r.blockDependents(dep)
		}
	}
}

func (r *chainRun) block(id, prereq string) {
	res := r.results[id]
	res.State = StateBlocked
	res.Error = "prerequisite '" + prereq + "' did not succeed"
	logging.Logf(logging.Debug, "Link '%s' blocked by '%s'", id, prereq)
}

func (r *chainRun) failForDeadline(id string) {
	r.timedOut = true
	res := r.results[id]
	res.State = StateFailed
	res.Reason = executor.ReasonChainTimeout
	res.Error = "global chain deadline exceeded before link could run"
}

// unmetPrereq returns a prerequisite of id that did not succeed, if any. Used
// by the sequential walk, where topological order guarantees every
// prerequisite is terminal by the time id is considered.
func (r *chainRun) unmetPrereq(id string) (string, bool) {
	for _, prereq := range r.graph.Prereqs[id] {
		if r.results[prereq].State != StateSucceeded {
			return prereq, true
		}
	}
	return "", false
}
