// Package dag provides the directed graph used to schedule field
// computation. It supports cycle detection that reports every member of
// a cycle and a topological sort with deterministic tie-breaking by a
// caller-supplied rank (schema order).
package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed graph over string node IDs. An edge from A to B
// means B depends on A, so A must be computed first.
type Graph struct {
	rank     map[string]int
	children map[string][]string // dependency -> dependents
	parents  map[string][]string // dependent -> dependencies
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		rank:     make(map[string]int),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node with its tie-breaking rank. Adding an existing
// node updates the rank.
func (g *Graph) AddNode(id string, rank int) {
	if _, exists := g.rank[id]; !exists {
		g.children[id] = []string{}
		g.parents[id] = []string{}
	}
	g.rank[id] = rank
}

// Has reports whether the node exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.rank[id]
	return ok
}

// AddEdge adds a directed edge from dependency to dependent. Both nodes
// must already exist. Self-edges are allowed here and surface later as
// one-member cycles.
func (g *Graph) AddEdge(from, to string) error {
	if !g.Has(from) {
		return fmt.Errorf("node %q does not exist", from)
	}
	if !g.Has(to) {
		return fmt.Errorf("node %q does not exist", to)
	}
	if contains(g.children[from], to) {
		return nil
	}
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	return nil
}

// Parents returns the dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the dependents of a node.
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// Nodes returns all node IDs sorted by rank.
func (g *Graph) Nodes() []string {
	ids := make([]string, 0, len(g.rank))
	for id := range g.rank {
		ids = append(ids, id)
	}
	g.sortByRank(ids)
	return ids
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.rank)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, c := range g.children {
		count += len(c)
	}
	return count
}

// CycleMembers returns every node that sits on a cycle, sorted by rank.
// An empty result means the graph is acyclic. Membership comes from
// strongly connected components: any component with more than one node,
// plus any self-edge.
func (g *Graph) CycleMembers() []string {
	index := make(map[string]int, len(g.rank))
	low := make(map[string]int, len(g.rank))
	onStack := make(map[string]bool, len(g.rank))
	var stack []string
	next := 0

	var members []string

	var strongconnect func(id string)
	strongconnect = func(id string) {
		index[id] = next
		low[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true

		for _, child := range g.children[id] {
			if _, seen := index[child]; !seen {
				strongconnect(child)
				if low[child] < low[id] {
					low[id] = low[child]
				}
			} else if onStack[child] {
				if index[child] < low[id] {
					low[id] = index[child]
				}
			}
		}

		if low[id] == index[id] {
			var scc []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				scc = append(scc, top)
				if top == id {
					break
				}
			}
			if len(scc) > 1 || contains(g.children[id], id) {
				members = append(members, scc...)
			}
		}
	}

	for _, id := range g.Nodes() {
		if _, seen := index[id]; !seen {
			strongconnect(id)
		}
	}

	g.sortByRank(members)
	return members
}

// TopologicalSort returns the node IDs in dependency order. Among nodes
// whose dependencies are all satisfied, the one with the lowest rank
// goes first, so the order is stable across runs. Returns an error
// naming the cycle members if the graph is cyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	if members := g.CycleMembers(); len(members) > 0 {
		return nil, fmt.Errorf("cycle detected: %v", members)
	}

	indegree := make(map[string]int, len(g.rank))
	for id := range g.rank {
		indegree[id] = len(g.parents[id])
	}

	var frontier []string
	for id, d := range indegree {
		if d == 0 {
			frontier = append(frontier, id)
		}
	}

	order := make([]string, 0, len(g.rank))
	for len(frontier) > 0 {
		g.sortByRank(frontier)
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		for _, child := range g.children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				frontier = append(frontier, child)
			}
		}
	}
	return order, nil
}

// Levels groups nodes by dependency depth: level 0 has no dependencies,
// level N depends only on earlier levels. Within a level nodes are
// sorted by rank. Used to build one query layer per level.
func (g *Graph) Levels() ([][]string, error) {
	if members := g.CycleMembers(); len(members) > 0 {
		return nil, fmt.Errorf("cycle detected: %v", members)
	}

	assigned := make(map[string]int, len(g.rank))
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := assigned[id]; ok {
			return d
		}
		d := 0
		for _, parent := range g.parents[id] {
			if pd := depth(parent) + 1; pd > d {
				d = pd
			}
		}
		assigned[id] = d
		return d
	}

	maxDepth := 0
	for id := range g.rank {
		if d := depth(id); d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for id, d := range assigned {
		levels[d] = append(levels[d], id)
	}
	for i := range levels {
		g.sortByRank(levels[i])
	}
	return levels, nil
}

// sortByRank orders ids by rank, falling back to the ID itself so nodes
// sharing a rank still sort deterministically.
func (g *Graph) sortByRank(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := g.rank[ids[i]], g.rank[ids[j]]
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
