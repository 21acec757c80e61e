package dag

import (
	"reflect"
	"testing"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := New()

	g.AddNode("a", 0)
	g.AddNode("b", 1)
	g.AddNode("c", 2)

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	// b depends on a
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// c depends on b
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// duplicate edges are ignored
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to re-add edge: %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := New()
	g.AddNode("a", 0)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent target node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent source node")
	}
}

func TestGraph_ParentsAndChildren(t *testing.T) {
	g := New()
	g.AddNode("a", 0)
	g.AddNode("b", 1)
	g.AddNode("c", 2)
	_ = g.AddEdge("a", "c")
	_ = g.AddEdge("b", "c")

	parents := g.Parents("c")
	if len(parents) != 2 {
		t.Errorf("expected 2 parents, got %v", parents)
	}
	children := g.Children("a")
	if len(children) != 1 || children[0] != "c" {
		t.Errorf("expected [c], got %v", children)
	}
}

func TestGraph_CycleMembers_Acyclic(t *testing.T) {
	g := New()
	g.AddNode("a", 0)
	g.AddNode("b", 1)
	g.AddNode("c", 2)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")

	if members := g.CycleMembers(); len(members) != 0 {
		t.Errorf("expected no cycle, got members %v", members)
	}
}

func TestGraph_CycleMembers_ReportsEveryMember(t *testing.T) {
	g := New()
	for i, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id, i)
	}
	// a -> b -> c -> a is a cycle, d hangs off b
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")
	_ = g.AddEdge("c", "a")
	_ = g.AddEdge("b", "d")

	members := g.CycleMembers()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(members, want) {
		t.Errorf("expected members %v, got %v", want, members)
	}
}

func TestGraph_CycleMembers_SelfEdge(t *testing.T) {
	g := New()
	g.AddNode("a", 0)
	g.AddNode("b", 1)
	_ = g.AddEdge("a", "a")

	members := g.CycleMembers()
	if !reflect.DeepEqual(members, []string{"a"}) {
		t.Errorf("expected [a], got %v", members)
	}
}

func TestGraph_CycleMembers_TwoDisjointCycles(t *testing.T) {
	g := New()
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		g.AddNode(id, i)
	}
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "a")
	_ = g.AddEdge("c", "d")
	_ = g.AddEdge("d", "c")

	members := g.CycleMembers()
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(members, want) {
		t.Errorf("expected members %v, got %v", want, members)
	}
}

func TestGraph_TopologicalSort(t *testing.T) {
	g := New()
	for i, id := range []string{"raw", "mid", "top"} {
		g.AddNode(id, i)
	}
	_ = g.AddEdge("raw", "mid")
	_ = g.AddEdge("mid", "top")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"raw", "mid", "top"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestGraph_TopologicalSort_RankBreaksTies(t *testing.T) {
	// z and a are both ready at the start; z has the lower rank and
	// must come first regardless of name.
	g := New()
	g.AddNode("z", 0)
	g.AddNode("a", 1)
	g.AddNode("end", 2)
	_ = g.AddEdge("z", "end")
	_ = g.AddEdge("a", "end")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"z", "a", "end"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestGraph_TopologicalSort_CycleFails(t *testing.T) {
	g := New()
	g.AddNode("a", 0)
	g.AddNode("b", 1)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "a")

	if _, err := g.TopologicalSort(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}

func TestGraph_Levels(t *testing.T) {
	g := New()
	for i, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id, i)
	}
	_ = g.AddEdge("a", "c")
	_ = g.AddEdge("b", "c")
	_ = g.AddEdge("c", "d")

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"a", "b"}, {"c"}, {"d"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("expected %v, got %v", want, levels)
	}
}
