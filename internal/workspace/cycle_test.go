package workspace

import (
	"errors"
	"testing"
)

var errSpawnRefused = errors.New("spawn refused")

// fakeEngine is an in-memory PTYEngine for exercising workspace operations
// without a real PTY, the same "inject a fake behind the interface" pattern
// internal/pty.Engine uses its own spawnFn seam for.
type fakeEngine struct {
	created  map[string]bool
	sinks    map[string]func([]byte)
	failNext bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		created: make(map[string]bool),
		sinks:   make(map[string]func([]byte)),
	}
}

func (f *fakeEngine) Create(id, cwd string, cols, rows uint16, sink func([]byte)) error {
	if f.failNext {
		f.failNext = false
		return errSpawnRefused
	}
	f.created[id] = true
	f.sinks[id] = sink
	return nil
}

func (f *fakeEngine) Write(id string, data []byte) error { return nil }

func (f *fakeEngine) Close(id string) error {
	delete(f.created, id)
	return nil
}

func (f *fakeEngine) GetCwd(id string) (string, error) { return "/tmp", nil }

func newTestWorkspace() *Workspace {
	return New(newFakeEngine(), func(terminalID string, chunk []byte) {})
}

// Cycling forward across two projects with one tab each must alternate
// between them, wrapping around.
func TestCycleForwardAcrossProjects(t *testing.T) {
	w := newTestWorkspace()
	_, _, sessA, err := w.CreateProjectWithTerminal("alpha", "/tmp/a", 80, 24)
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	_, _, sessB, err := w.CreateProjectWithTerminal("beta", "/tmp/b", 80, 24)
	if err != nil {
		t.Fatalf("create beta: %v", err)
	}

	if err := w.SetActiveTerminal(sessA.ID); err != nil {
		t.Fatalf("set active: %v", err)
	}

	w.CycleForward()
	if got := w.Terminals.ActiveTerminalID(); got != sessB.ID {
		t.Fatalf("after one forward cycle: got %s, want %s", got, sessB.ID)
	}

	w.CycleForward()
	if got := w.Terminals.ActiveTerminalID(); got != sessA.ID {
		t.Fatalf("after wrapping forward cycle: got %s, want %s", got, sessA.ID)
	}

	w.CycleBackward()
	if got := w.Terminals.ActiveTerminalID(); got != sessB.ID {
		t.Fatalf("after wrapping backward cycle: got %s, want %s", got, sessB.ID)
	}
}

// CycleForward/Backward on a workspace with fewer than two tabs is a no-op.
func TestCycleNoopWithSingleTab(t *testing.T) {
	w := newTestWorkspace()
	_, _, sess, err := w.CreateProjectWithTerminal("solo", "/tmp/s", 80, 24)
	if err != nil {
		t.Fatalf("create solo: %v", err)
	}
	if err := w.SetActiveTerminal(sess.ID); err != nil {
		t.Fatalf("set active: %v", err)
	}

	w.CycleForward()
	if got := w.Terminals.ActiveTerminalID(); got != sess.ID {
		t.Fatalf("expected no-op cycle to leave active terminal unchanged, got %s", got)
	}
}

// Cycling back to a tab with split panes must restore the last-focused pane,
// not always the tab root.
func TestCycleRestoresLastFocusedPane(t *testing.T) {
	w := newTestWorkspace()
	_, tabNode, rootSess, err := w.CreateProjectWithTerminal("alpha", "/tmp/a", 80, 24)
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	_, _, sessB, err := w.CreateProjectWithTerminal("beta", "/tmp/b", 80, 24)
	if err != nil {
		t.Fatalf("create beta: %v", err)
	}

	splitSess, err := w.SplitPane(rootSess.ID, Horizontal, 80, 24)
	if err != nil {
		t.Fatalf("split pane: %v", err)
	}
	if err := w.SetActiveTerminal(splitSess.ID); err != nil {
		t.Fatalf("focus split pane: %v", err)
	}

	if err := w.SetActiveTerminal(sessB.ID); err != nil {
		t.Fatalf("switch to beta: %v", err)
	}

	w.CycleBackward()
	if got := w.Terminals.ActiveTerminalID(); got != splitSess.ID {
		t.Fatalf("cycling back to alpha: got active terminal %s, want restored pane %s", got, splitSess.ID)
	}
	_ = tabNode
}

// Closing a pane must purge any lastFocused entry pointing at it, or cycling
// back would try to restore a dead terminal.
func TestPurgeLastFocusedOnClose(t *testing.T) {
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

	w.mu.Lock()
	for _, v := range w.lastFocused {
		if v == splitSess.ID {
			w.mu.Unlock()
			t.Fatalf("lastFocused still references closed pane %s", splitSess.ID)
		}
	}
	w.mu.Unlock()
}
