package workspace

import "testing"

// Closing a tab root that still has split siblings must re-key the surviving
// layout under a remaining leaf and rewrite the tab node's terminal id.
func TestCloseTabRootRekeysLayout(t *testing.T) {
	w := newTestWorkspace()
	_, tabNode, rootSess, err := w.CreateProjectWithTerminal("alpha", "/tmp/a", 80, 24)
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	splitSess, err := w.SplitPane(rootSess.ID, Horizontal, 80, 24)
	if err != nil {
		t.Fatalf("split pane: %v", err)
	}

	if err := w.ClosePane(rootSess.ID); err != nil {
		t.Fatalf("close tab root: %v", err)
	}

	if _, ok := w.Layouts.Get(rootSess.ID); ok {
		t.Fatalf("layout still keyed under closed tab root %s", rootSess.ID)
	}
	tree, ok := w.Layouts.Get(splitSess.ID)
	if !ok {
		t.Fatalf("expected layout re-keyed under surviving pane %s", splitSess.ID)
	}
	if got := findTerminalIds(tree); !equalStrings(got, []string{splitSess.ID}) {
		t.Fatalf("surviving layout leaves = %v, want [%s]", got, splitSess.ID)
	}

	node, ok := w.Projects.Node(tabNode.ID)
	if !ok {
		t.Fatal("tab node disappeared")
	}
	if node.TerminalID != splitSess.ID {
		t.Fatalf("tab node terminal id = %s, want rewritten to %s", node.TerminalID, splitSess.ID)
	}

	if _, ok := w.Terminals.Get(rootSess.ID); ok {
		t.Fatalf("session %s should have been removed", rootSess.ID)
	}
}

// Closing the active pane with a sibling present must hand focus to the
// sibling.
func TestClosePaneActivatesSibling(t *testing.T) {
	w := newTestWorkspace()
	_, _, rootSess, err := w.CreateProjectWithTerminal("alpha", "/tmp/a", 80, 24)
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	splitSess, err := w.SplitPane(rootSess.ID, Vertical, 80, 24)
	if err != nil {
		t.Fatalf("split pane: %v", err)
	}
	if err := w.SetActiveTerminal(splitSess.ID); err != nil {
		t.Fatalf("focus split pane: %v", err)
	}

	if err := w.ClosePane(splitSess.ID); err != nil {
		t.Fatalf("close pane: %v", err)
	}
	if got := w.Terminals.ActiveTerminalID(); got != rootSess.ID {
		t.Fatalf("active terminal after close = %s, want sibling %s", got, rootSess.ID)
	}
}

// Closing the last pane of the last project must clear both active ids and
// delete the emptied project.
func TestCloseLastPaneClearsActives(t *testing.T) {
	w := newTestWorkspace()
	proj, _, sess, err := w.CreateProjectWithTerminal("solo", "/tmp/s", 80, 24)
	if err != nil {
		t.Fatalf("create solo: %v", err)
	}

	if err := w.ClosePane(sess.ID); err != nil {
		t.Fatalf("close pane: %v", err)
	}

	if got := w.Terminals.ActiveTerminalID(); got != "" {
		t.Fatalf("active terminal = %q, want empty", got)
	}
	if got := w.Projects.ActiveProjectID(); got != "" {
		t.Fatalf("active project = %q, want empty", got)
	}
	if _, ok := w.Projects.Get(proj.ID); ok {
		t.Fatal("emptied project should have been deleted")
	}
}

// Moving a tab between projects must move only the tree node; its sessions
// and layout stay put.
func TestMoveTerminalBetweenProjects(t *testing.T) {
	w := newTestWorkspace()
	srcProj, tabNode, rootSess, err := w.CreateProjectWithTerminal("src", "/tmp/src", 80, 24)
	if err != nil {
		t.Fatalf("create src: %v", err)
	}
	splitSess, err := w.SplitPane(rootSess.ID, Horizontal, 80, 24)
	if err != nil {
		t.Fatalf("split pane: %v", err)
	}
	destProj, _, _, err := w.CreateProjectWithTerminal("dest", "/tmp/dest", 80, 24)
	if err != nil {
		t.Fatalf("create dest: %v", err)
	}

	if err := w.MoveTerminalBetweenProjects(tabNode.ID, destProj.ID); err != nil {
		t.Fatalf("move terminal: %v", err)
	}

	tree, ok := w.Layouts.Get(rootSess.ID)
	if !ok {
		t.Fatal("layout should be untouched by the move")
	}
	if got := findTerminalIds(tree); !equalStrings(got, []string{rootSess.ID, splitSess.ID}) {
		t.Fatalf("layout leaves after move = %v, want [%s %s]", got, rootSess.ID, splitSess.ID)
	}
	for _, id := range []string{rootSess.ID, splitSess.ID} {
		if _, ok := w.Terminals.Get(id); !ok {
			t.Fatalf("session %s should survive the move", id)
		}
	}

	src, _ := w.Projects.Get(srcProj.ID)
	srcRoot, _ := w.Projects.Node(src.RootGroupID)
	if indexOf(srcRoot.Children, tabNode.ID) >= 0 {
		t.Fatalf("source root group still lists moved node %s", tabNode.ID)
	}
	dest, _ := w.Projects.Get(destProj.ID)
	destRoot, _ := w.Projects.Node(dest.RootGroupID)
	if indexOf(destRoot.Children, tabNode.ID) < 0 {
		t.Fatalf("destination root group missing moved node %s", tabNode.ID)
	}
	node, _ := w.Projects.Node(tabNode.ID)
	if node.ParentID != dest.RootGroupID {
		t.Fatalf("moved node parent = %s, want %s", node.ParentID, dest.RootGroupID)
	}
}

// Output fed through a terminal's sink must be readable back as scrollback
// until the pane closes.
func TestScrollbackRetainedUntilClose(t *testing.T) {
	eng := newFakeEngine()
	w := New(eng, func(terminalID string, chunk []byte) {})
	_, _, sess, err := w.CreateProjectWithTerminal("alpha", "/tmp/a", 80, 24)
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}

	eng.sinks[sess.ID]([]byte("hello "))
	eng.sinks[sess.ID]([]byte("world"))
	if got := string(w.Scrollback(sess.ID)); got != "hello world" {
		t.Fatalf("scrollback = %q, want %q", got, "hello world")
	}

	if err := w.ClosePane(sess.ID); err != nil {
		t.Fatalf("close pane: %v", err)
	}
	if got := w.Scrollback(sess.ID); got != nil {
		t.Fatalf("scrollback after close = %q, want none", got)
	}
}

// A failed spawn must roll back every store change the composite operation
// made, leaving no orphaned session, layout, or node.
func TestCreateProjectRollsBackOnSpawnFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.failNext = true
	w := New(eng, func(terminalID string, chunk []byte) {})

	if _, _, _, err := w.CreateProjectWithTerminal("doomed", "/tmp/d", 80, 24); err == nil {
		t.Fatal("expected spawn failure to propagate")
	}

	if got := len(w.Projects.ProjectOrder()); got != 0 {
		t.Fatalf("projects after rollback = %d, want 0", got)
	}
	if got := len(w.Terminals.Snapshot()); got != 0 {
		t.Fatalf("sessions after rollback = %d, want 0", got)
	}
	if got := len(w.Layouts.Keys()); got != 0 {
		t.Fatalf("layouts after rollback = %d, want 0", got)
	}
}
