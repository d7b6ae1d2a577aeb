package pty

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
	"sync"
	"testing"
	"time"
)

// fakeMaster is an in-memory ptyIO used to exercise the engine without
// spawning a real process. Output (from the simulated child) and input (to
// the simulated child) use separate pipes since a real PTY master
// multiplexes both directions independently.
type fakeMaster struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	mu     sync.Mutex
	in     bytes.Buffer
	closed chan struct{}
}

func newFakeMaster() *fakeMaster {
	r, w := io.Pipe()
	return &fakeMaster{outR: r, outW: w, closed: make(chan struct{})}
}

func (f *fakeMaster) Read(p []byte) (int, error) { return f.outR.Read(p) }

func (f *fakeMaster) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in.Write(p)
}

func (f *fakeMaster) Close() error {
	f.mu.Lock()
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	f.mu.Unlock()
	_ = f.outW.Close()
	return f.outR.Close()
}

// emitOutput simulates the child process producing output.
func (f *fakeMaster) emitOutput(s string) {
	go func() { _, _ = io.WriteString(f.outW, s) }()
}

func newTestEngine(t *testing.T) (*Engine, *fakeMaster) {
	t.Helper()
	fm := newFakeMaster()
	e := NewEngine(nil)
	e.spawnFn = func(cwd string, cols, rows uint16) (ptyIO, *exec.Cmd, error) {
		return fm, nil, nil
	}
	// The fake has no real child process to wait on; waitLoop still blocks on
	// <-h.readDone right after this returns, so teardown is driven by closing
	// fm's output pipe (see fm.Close), not by this function.
	e.waitFn = func(master ptyIO, cmd *exec.Cmd) *int {
		return nil
	}
	return e, fm
}

func TestCreateDuplicateIDRejected(t *testing.T) {
	e, fm := newTestEngine(t)
	if err := e.Create("a", "", 80, 24, func([]byte) {}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := e.Create("a", "", 80, 24, func([]byte) {}); err == nil {
		t.Fatal("expected ErrAlreadyExists on duplicate id")
	}
	_ = fm.Close()
	_ = e.Close("a")
}

func TestWriteUnknownIDIsSentinel(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Write("missing", []byte("hi")); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestCloseUnknownIDIsNoop(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Close("never-existed"); err != nil {
		t.Fatalf("close of unknown id must be idempotent no-op, got %v", err)
	}
}

func TestOutputDeliveredToSink(t *testing.T) {
	e, fm := newTestEngine(t)
	received := make(chan []byte, 4)
	if err := e.Create("s1", "", 80, 24, func(chunk []byte) {
		cp := append([]byte(nil), chunk...)
		received <- cp
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	fm.emitOutput("hello")

	select {
	case chunk := <-received:
		if string(chunk) != "hello" {
			t.Fatalf("got %q, want %q", chunk, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sink delivery")
	}

	_ = fm.Close()
	_ = e.Close("s1")
}

func TestWriteReachesMaster(t *testing.T) {
	e, fm := newTestEngine(t)
	if err := e.Create("w1", "", 80, 24, func([]byte) {}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.Write("w1", []byte("ls\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	fm.mu.Lock()
	got := fm.in.String()
	fm.mu.Unlock()
	if got != "ls\n" {
		t.Fatalf("got %q written to master, want %q", got, "ls\n")
	}
	_ = fm.Close()
	_ = e.Close("w1")
}

func TestResizeDedupesRepeatedDims(t *testing.T) {
	e, fm := newTestEngine(t)
	calls := 0
	e.resizeFn = func(master ptyIO, cols, rows uint16) error {
		calls++
		return nil
	}
	if err := e.Create("r1", "", 80, 24, func([]byte) {}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.Resize("r1", 100, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if err := e.Resize("r1", 100, 40); err != nil {
		t.Fatalf("repeat resize: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the second identical resize to short-circuit, got %d underlying calls", calls)
	}
	_ = fm.Close()
	_ = e.Close("r1")
}
