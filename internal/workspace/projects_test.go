package workspace

import "testing"

// Reordering a node against itself is a no-op, and reordering distinct
// children actually moves them.
func TestReorderChild(t *testing.T) {
	s := newProjectStore()
	parent := &TreeNode{ID: "parent", Kind: NodeGroup}
	s.nodes[parent.ID] = parent
	for _, id := range []string{"a", "b", "c"} {
		s.AddNode(&TreeNode{ID: id, Kind: NodeTerminal, ParentID: parent.ID, TerminalID: id})
	}

	if err := s.ReorderChild(parent.ID, "a", "a", false); err != nil {
		t.Fatalf("self-reorder: %v", err)
	}
	if got := parent.Children; !equalStrings(got, []string{"a", "b", "c"}) {
		t.Fatalf("self-reorder must be a no-op, got %v", got)
	}

	if err := s.ReorderChild(parent.ID, "c", "a", false); err != nil {
		t.Fatalf("reorder c before a: %v", err)
	}
	if got := parent.Children; !equalStrings(got, []string{"c", "a", "b"}) {
		t.Fatalf("got %v, want [c a b]", got)
	}

	if err := s.ReorderChild(parent.ID, "c", "b", true); err != nil {
		t.Fatalf("reorder c after b: %v", err)
	}
	if got := parent.Children; !equalStrings(got, []string{"a", "b", "c"}) {
		t.Fatalf("got %v, want [a b c]", got)
	}
}

// AddChildToNode must tolerate re-adding an existing child.
func TestAddChildToNodeIdempotent(t *testing.T) {
	s := newProjectStore()
	parent := &TreeNode{ID: "parent", Kind: NodeGroup}
	s.nodes[parent.ID] = parent

	if err := s.AddChildToNode(parent.ID, "x"); err != nil {
		t.Fatalf("add child: %v", err)
	}
	if err := s.AddChildToNode(parent.ID, "x"); err != nil {
		t.Fatalf("re-add child: %v", err)
	}
	if len(parent.Children) != 1 {
		t.Fatalf("children = %v, want exactly one entry", parent.Children)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
