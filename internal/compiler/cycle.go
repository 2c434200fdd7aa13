package compiler

import (
	"sort"
	"strings"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

// dependencyGraph maps an operation to the operations its directives invoke.
// Catch handlers are not edges: they are called directly, not through an entry.
type dependencyGraph map[string][]string

// checkCycles records an error for every cycle among directive targets.
// Targets run through their own entries, so a cycle would recurse forever.
func (c *Compiler) checkCycles(cd *index.ClassDescriptor, steps []*plan.Step, errs *Errors) {
	graph := buildDependencyGraph(steps)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			path := reconstructCyclePath(scc, graph)
			errs.Add(ErrCycle, cd.Name, strings.Join(path, " → "))
		}
	}
}

func buildDependencyGraph(steps []*plan.Step) dependencyGraph {
	graph := make(dependencyGraph)
	for _, s := range steps {
		from := s.Owner.Signature()
		if graph[from] == nil {
			graph[from] = []string{}
		}
		for _, t := range s.Targets {
			graph[from] = append(graph[from], t.Op.Signature())
		}
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so reports are deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		counter = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside the SCC from its smallest member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	start := scc[0]
	for _, node := range scc {
		members[node] = true
		if node < start {
			start = node
		}
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
