// Package graph builds the directed acyclic dependency graph of a chain's
// links and derives a deterministic topological layering from it. All
// traversal works over request ids; nodes never reference each other directly,
// which keeps the graph serializable and free of ownership cycles.
package graph

import (
	"fmt"
	"strings"

	"chainforge/internal/definition"
)

// CycleError reports a dependency cycle, naming the links on the cycle.
type CycleError struct {
	Links []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving links: %s", strings.Join(e.Links, " -> "))
}

// UnknownDependencyError reports a dependsOn entry that does not resolve to a
// declared request id.
type UnknownDependencyError struct {
	LinkID string
	Ref    string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("link '%s' depends on '%s' which does not exist in the chain", e.LinkID, e.Ref)
}

// Graph is the validated dependency structure of a chain, keyed by request id.
type Graph struct {
	// Order lists every link id in a deterministic topological order: layer by
	// layer, declaration order within a layer.
	Order []string
	// Layers groups link ids by dependency depth. Layer 0 holds links with no
	// prerequisites; a link sits in layer 1 + max(layer of its prerequisites).
	Layers [][]string
	// Prereqs maps a link id to the ids that must succeed before it runs.
	Prereqs map[string][]string
	// Dependents maps a link id to the ids that list it as a prerequisite.
	Dependents map[string][]string

	layerOf map[string]int
}

// LayerOf returns the dependency depth of a link id.
func (g *Graph) LayerOf(id string) int {
	return g.layerOf[id]
}

// Colors for the depth-first cycle scan.
const (
	colorUnvisited = iota
	colorInProgress
	colorDone
)

// Build constructs the dependency graph for a set of links. It fails with an
// *UnknownDependencyError for dangling dependsOn references and a *CycleError
// when the dependency relation is not acyclic.
func Build(links []definition.Link) (*Graph, error) {
	declared := make(map[string]bool, len(links))
	order := make([]string, 0, len(links))
	for _, link := range links {
		declared[link.Request.ID] = true
		order = append(order, link.Request.ID)
	}

	g := &Graph{
		Prereqs:    make(map[string][]string, len(links)),
		Dependents: make(map[string][]string, len(links)),
		layerOf:    make(map[string]int, len(links)),
	}
	for _, link := range links {
		id := link.Request.ID
		g.Prereqs[id] = append([]string(nil), link.Request.DependsOn...)
		for _, dep := range link.Request.DependsOn {
			if !declared[dep] {
				return nil, &UnknownDependencyError{LinkID: id, Ref: dep}
			}
			g.Dependents[dep] = append(g.Dependents[dep], id)
		}
	}

	if cycle := findCycle(order, g.Prereqs); cycle != nil {
		return nil, &CycleError{Links: cycle}
	}

	g.layer(order)
	return g, nil
}

// findCycle runs a three-color depth-first scan over the prerequisite edges.
// It returns the ids on the first cycle encountered, in traversal order, or
// nil when the graph is acyclic.
func findCycle(order []string, prereqs map[string][]string) []string {
	color := make(map[string]int, len(order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = colorInProgress
		stack = append(stack, id)
		for _, dep := range prereqs[id] {
			switch color[dep] {
			case colorInProgress:
				// Back-edge: slice the current stack from the repeated id.
				for i, onStack := range stack {
					if onStack == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			case colorUnvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = colorDone
		return nil
	}

	for _, id := range order {
		if color[id] == colorUnvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// layer assigns each link its dependency depth and materializes Layers and
// Order. The graph is already known to be acyclic here.
func (g *Graph) layer(order []string) {
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := g.layerOf[id]; ok {
			return d
		}
		d := 0
		for _, dep := range g.Prereqs[id] {
			if pd := depth(dep) + 1; pd > d {
				d = pd
			}
		}
		g.layerOf[id] = d
		return d
	}

	maxLayer := 0
	for _, id := range order {
		if d := depth(id); d > maxLayer {
			maxLayer = d
		}
	}

	g.Layers = make([][]string, maxLayer+1)
	// Declaration order within a layer keeps the layering deterministic.
	for _, id := range order {
		d := g.layerOf[id]
		g.Layers[d] = append(g.Layers[d], id)
	}
	for _, layer := range g.Layers {
		g.Order = append(g.Order, layer...)
	}
}
