package safety

import (
	"sync"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// DependencyGraph tracks a directed graph of named nodes and detects cycles
// via DFS. It backs both DependencyValidator.ValidateNoCircularDependencies
// here and the pattern package's composition ordering, so the
// cycle-detection walk is written once and reused by both call sites.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[string][]string // node -> dependencies
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{nodes: make(map[string][]string)}
}

// AddNode registers node with the given dependency list, replacing any prior
// entry for the same node.
func (g *DependencyGraph) AddNode(node string, dependencies []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[node] = append([]string(nil), dependencies...)
}

// Nodes returns a snapshot of the node set.
func (g *DependencyGraph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Dependencies returns a snapshot of the node's dependency list.
func (g *DependencyGraph) Dependencies(node string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.nodes[node]...)
}

// HasCycle reports whether the graph, as currently populated, contains a
// cycle reachable from any node - including a direct self-dependency, which
// is classified the same as any other circular dependency.
func (g *DependencyGraph) HasCycle() (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for node := range g.nodes {
		if !visited[node] {
			if cycleNode, found := g.hasCycleDFS(node, visited, recStack); found {
				return true, cycleNode
			}
		}
	}
	return false, ""
}

func (g *DependencyGraph) hasCycleDFS(node string, visited, recStack map[string]bool) (string, bool) {
	visited[node] = true
	recStack[node] = true

	for _, dep := range g.nodes[node] {
		if !visited[dep] {
			if cycleNode, found := g.hasCycleDFS(dep, visited, recStack); found {
				return cycleNode, true
			}
		} else if recStack[dep] {
			return dep, true
		}
	}

	recStack[node] = false
	return "", false
}

// MissingDependency returns the first dependency edge pointing at a node that
// was never added to the graph, if any.
func (g *DependencyGraph) MissingDependency() (node, dep string, found bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for n, deps := range g.nodes {
		for _, d := range deps {
			if _, exists := g.nodes[d]; !exists {
				return n, d, true
			}
		}
	}
	return "", "", false
}

// TopologicalOrder returns nodes in dependency-first order via Kahn's
// algorithm, for reuse by the pattern package's composition executor.
// The returned order is empty if the graph contains a cycle.
func (g *DependencyGraph) TopologicalOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for node := range g.nodes {
		if _, ok := inDegree[node]; !ok {
			inDegree[node] = 0
		}
	}
	for node, deps := range g.nodes {
		inDegree[node] += len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], node)
		}
	}

	var queue []string
	for node, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, node)
		}
	}

	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, dep := range dependents[cur] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil // cycle present, no valid order
	}
	return order
}

// ExecutionLevels groups nodes into waves that can execute in parallel: every
// node in a level has all its dependencies satisfied by earlier levels.
func (g *DependencyGraph) ExecutionLevels() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	processed := make(map[string]bool, len(g.nodes))
	var levels [][]string

	for {
		var level []string
		for node, deps := range g.nodes {
			if processed[node] {
				continue
			}
			ready := true
			for _, d := range deps {
				if !processed[d] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, node)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, node := range level {
			processed[node] = true
		}
		levels = append(levels, level)
	}
	return levels
}

// validateCycleFree wraps HasCycle as a rherr.ErrCircularDependency for
// DependencyValidator.
func (g *DependencyGraph) validateCycleFree(op string) error {
	if has, node := g.HasCycle(); has {
		return rherr.New(op, "safety", rherr.ErrCircularDependency,
			"circular dependency detected involving "+node)
	}
	return nil
}
