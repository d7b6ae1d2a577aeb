package workspace

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatcher.db")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// A full round trip through SaveAll/LoadInto must preserve project,
// terminal, and layout state, except that every restored session is forced
// to status=done with a nil exit code (PTYs never survive restart).
func TestSaveAllLoadIntoRoundTrip(t *testing.T) {
	store := openTestStore(t)
	src := newTestWorkspace()

	_, _, sessA, err := src.CreateProjectWithTerminal("alpha", "/tmp/a", 80, 24)
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	if _, err := src.SplitPane(sessA.ID, Horizontal, 80, 24); err != nil {
		t.Fatalf("split pane: %v", err)
	}
	src.Terminals.UpdateStatus(sessA.ID, StatusRunning, nil)

	if err := store.SaveAll(src); err != nil {
		t.Fatalf("save all: %v", err)
	}

	dst := newTestWorkspace()
	if err := store.LoadInto(dst); err != nil {
		t.Fatalf("load into: %v", err)
	}

	if got, want := len(dst.Projects.ProjectOrder()), 1; got != want {
		t.Fatalf("projectOrder length = %d, want %d", got, want)
	}
	restored, ok := dst.Terminals.Get(sessA.ID)
	if !ok {
		t.Fatalf("expected terminal %s to be restored", sessA.ID)
	}
	if restored.Status != StatusDone {
		t.Fatalf("restored status = %v, want %v (PTYs do not survive restart)", restored.Status, StatusDone)
	}
	if restored.ExitCode != nil {
		t.Fatalf("restored exit code = %v, want nil", *restored.ExitCode)
	}
}

// LoadInto on an empty store must leave a freshly constructed workspace
// untouched rather than erroring; losing the backing store is non-fatal.
func TestLoadIntoEmptyStoreIsNoop(t *testing.T) {
	store := openTestStore(t)
	w := newTestWorkspace()

	if err := store.LoadInto(w); err != nil {
		t.Fatalf("load into empty store: %v", err)
	}
	if got := len(w.Projects.ProjectOrder()); got != 0 {
		t.Fatalf("projectOrder length = %d, want 0", got)
	}
}

func TestFontSizeDefaultsAndClamps(t *testing.T) {
	store := openTestStore(t)

	size, err := store.LoadFontSize()
	if err != nil {
		t.Fatalf("load font size: %v", err)
	}
	if size != defaultFontSize {
		t.Fatalf("default font size = %d, want %d", size, defaultFontSize)
	}

	if err := store.SaveFontSize(1000); err != nil {
		t.Fatalf("save font size: %v", err)
	}
	size, err = store.LoadFontSize()
	if err != nil {
		t.Fatalf("load font size: %v", err)
	}
	if size != maxFontSize {
		t.Fatalf("clamped font size = %d, want %d", size, maxFontSize)
	}
}
