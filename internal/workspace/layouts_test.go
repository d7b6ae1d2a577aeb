package workspace

import "testing"

// Splitting a terminal and then removing the new pane must restore the
// layout's original leaf order.
func TestSplitThenRemoveRestoresLayout(t *testing.T) {
	s := newLayoutStore()
	s.InitLayout("t1", "t1")

	before, _ := s.Get("t1")
	wantIDs := findTerminalIds(before)

	s.SplitTerminal("t1", "t1", "n1", Horizontal)
	s.RemoveTerminal("t1", "n1")

	after, ok := s.Get("t1")
	if !ok {
		t.Fatal("layout entry disappeared")
	}
	gotIDs := findTerminalIds(after)
	if !equalStrings(gotIDs, wantIDs) {
		t.Fatalf("leaves after split+remove = %v, want %v", gotIDs, wantIDs)
	}
}

// splitAtTerminal must insert the new terminal exactly once, preserving every
// existing leaf in order.
func TestSplitInsertsNewLeafOnce(t *testing.T) {
	root := newLeaf("n", "t1")
	root = splitAtTerminal(root, "t1", "t2", Vertical)
	root = splitAtTerminal(root, "t2", "t3", Horizontal)

	got := findTerminalIds(root)
	if !equalStrings(got, []string{"t1", "t2", "t3"}) {
		t.Fatalf("leaves = %v, want [t1 t2 t3]", got)
	}

	count := 0
	for _, id := range got {
		if id == "t3" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("t3 appears %d times, want exactly once", count)
	}
}

// Removing the last leaf must delete the layout entry entirely.
func TestRemoveLastLeafDeletesEntry(t *testing.T) {
	s := newLayoutStore()
	s.InitLayout("t1", "t1")
	s.RemoveTerminal("t1", "t1")
	if _, ok := s.Get("t1"); ok {
		t.Fatal("expected layout entry to be deleted with its last leaf")
	}
}

func TestSplitTerminalMissingKeyIsNoop(t *testing.T) {
	s := newLayoutStore()
	s.SplitTerminal("absent", "t1", "n1", Horizontal)
	if len(s.Keys()) != 0 {
		t.Fatalf("split on missing key must not create a layout, got keys %v", s.Keys())
	}
}

func TestSetRatioClamps(t *testing.T) {
	s := newLayoutStore()
	s.InitLayout("t1", "t1")
	s.SplitTerminal("t1", "t1", "t2", Horizontal)
	root, _ := s.Get("t1")

	s.SetRatio("t1", root.NodeID, 0.01)
	if root.Ratio != minRatio {
		t.Fatalf("ratio = %v, want clamped to %v", root.Ratio, minRatio)
	}
	s.SetRatio("t1", root.NodeID, 2.5)
	if root.Ratio != maxRatio {
		t.Fatalf("ratio = %v, want clamped to %v", root.Ratio, maxRatio)
	}
}

// FindLayoutKeyForTerminal: the key itself, a contained pane's key, and ""
// for an unknown terminal.
func TestFindLayoutKeyForTerminal(t *testing.T) {
	s := newLayoutStore()
	s.InitLayout("t1", "t1")
	s.SplitTerminal("t1", "t1", "p1", Vertical)

	if got := s.FindLayoutKeyForTerminal("t1"); got != "t1" {
		t.Fatalf("key lookup for the key itself = %q, want t1", got)
	}
	if got := s.FindLayoutKeyForTerminal("p1"); got != "t1" {
		t.Fatalf("key lookup for contained pane = %q, want t1", got)
	}
	if got := s.FindLayoutKeyForTerminal("ghost"); got != "" {
		t.Fatalf("key lookup for unknown terminal = %q, want empty", got)
	}
}

// findSiblingTerminalId walks to the nearest other leaf on either side of the
// target.
func TestFindSiblingTerminalId(t *testing.T) {
	root := newLeaf("n", "a")
	root = splitAtTerminal(root, "a", "b", Horizontal)
	root = splitAtTerminal(root, "b", "c", Vertical)

	sib, ok := findSiblingTerminalId(root, "a")
	if !ok || sib != "b" {
		t.Fatalf("sibling of a = %q (%v), want b", sib, ok)
	}
	sib, ok = findSiblingTerminalId(root, "c")
	if !ok || sib != "b" {
		t.Fatalf("sibling of c = %q (%v), want b", sib, ok)
	}
}
