package pty

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// closeGrace is how long a child gets between SIGTERM and SIGKILL.
const closeGrace = 100 * time.Millisecond

// readChunkSize bounds a single read from the PTY master; output sinks see
// chunks no larger than this, though the OS may hand back smaller ones.
const readChunkSize = 4096

// Engine owns the process-wide PTY registry: explicit construction, explicit
// Shutdown, no hidden lazy init.
type Engine struct {
	logger *slog.Logger
	pool   *warmPool

	mu      sync.RWMutex
	handles map[string]*handle

	onExitMu sync.RWMutex
	onExit   OnExitFunc

	// spawnFn defaults to the platform spawnShell; overridden in tests so the
	// registry/lifecycle logic can be exercised without a real PTY.
	spawnFn  func(cwd string, cols, rows uint16) (ptyIO, *exec.Cmd, error)
	resizeFn func(master ptyIO, cols, rows uint16) error
	waitFn   func(master ptyIO, cmd *exec.Cmd) *int
}

// OnExitFunc receives ExitEvent notifications. Registered once via SetOnExit.
type OnExitFunc func(ExitEvent)

// NewEngine constructs an empty registry. Call WarmPool afterward to start
// pre-spawning, if desired.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:   logger,
		pool:     newWarmPool(logger),
		handles:  make(map[string]*handle),
		spawnFn:  spawnShell,
		resizeFn: resizeMaster,
		waitFn:   waitExit,
	}
}

// SetOnExit registers the callback invoked when any PTY's child terminates.
func (e *Engine) SetOnExit(fn OnExitFunc) {
	e.onExitMu.Lock()
	e.onExit = fn
	e.onExitMu.Unlock()
}

func (e *Engine) fireExit(ev ExitEvent) {
	e.onExitMu.RLock()
	fn := e.onExit
	e.onExitMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Create spawns (or adopts from the warm pool) a PTY under id and begins
// forwarding its output to sink.
func (e *Engine) Create(id string, cwd string, cols, rows uint16, sink Sink) error {
	if cols == 0 || rows == 0 {
		cols, rows = 80, 24
	}

	e.mu.Lock()
	if _, exists := e.handles[id]; exists {
		e.mu.Unlock()
		return fmt.Errorf("create %s: %w", id, ErrAlreadyExists)
	}
	e.mu.Unlock()

	master, cmd, claimed := e.pool.claim(cols, rows)
	if !claimed {
		var err error
		master, cmd, err = e.spawnFn(cwd, cols, rows)
		if err != nil {
			return fmt.Errorf("create %s: %w: %v", id, ErrSpawnFailed, err)
		}
	} else if cwd != "" {
		// Adopted from the pool in a transient directory; move it.
		fmt.Fprintf(master, " cd %s\n", shellQuote(cwd))
	}

	h := newHandle(id, master, cmd, cols, rows, sink)

	e.mu.Lock()
	if _, exists := e.handles[id]; exists {
		// Lost a race with a concurrent Create for the same id.
		e.mu.Unlock()
		signalKill(master, cmd)
		_ = master.Close()
		return fmt.Errorf("create %s: %w", id, ErrAlreadyExists)
	}
	e.handles[id] = h
	e.mu.Unlock()

	go e.readLoop(h)
	go e.waitLoop(h)

	return nil
}

// shellQuote produces a single-quoted, shell-safe literal, matching the
// ` cd '<escaped>' && clear\n` injection idiom used by the workspace layer.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (e *Engine) readLoop(h *handle) {
	defer close(h.readDone)
	buf := make([]byte, readChunkSize)
	for {
		n, err := h.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.mu.Lock()
			sink := h.sink
			h.mu.Unlock()
			if sink != nil {
				sink(chunk)
			}
		}
		if err != nil {
			// A dead read side means the PTY is unusable; make sure the child
			// goes too so waitLoop reports the exit.
			signalKill(h.master, h.cmd)
			return
		}
	}
}

func (e *Engine) waitLoop(h *handle) {
	code := e.waitFn(h.master, h.cmd)

	<-h.readDone

	e.mu.Lock()
	delete(e.handles, h.id)
	e.mu.Unlock()

	h.closeOnce.Do(func() {
		_ = h.master.Close()
		close(h.done)
	})

	e.fireExit(ExitEvent{ID: h.id, ExitCode: code})
}

func (e *Engine) get(id string) (*handle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handles[id]
	return h, ok
}

// Write queues bytes for delivery to the PTY master. Unknown ids are a
// sentinel error at this layer; callers at the boundary treat it as a
// silent no-op.
func (e *Engine) Write(id string, data []byte) error {
	h, ok := e.get(id)
	if !ok {
		return fmt.Errorf("write %s: %w", id, ErrUnknownID)
	}
	if h.isDone() {
		return nil
	}
	_, err := h.master.Write(data)
	return err
}

// Resize applies a TIOCSWINSZ-equivalent resize, deduplicating repeats of the
// same dimensions to absorb flaky mobile resize event storms.
func (e *Engine) Resize(id string, cols, rows uint16) error {
	h, ok := e.get(id)
	if !ok {
		return fmt.Errorf("resize %s: %w", id, ErrUnknownID)
	}
	prevCols, prevRows := h.lastSize()
	if prevCols == cols && prevRows == rows {
		return nil
	}
	if err := e.resizeFn(h.master, cols, rows); err != nil {
		return err
	}
	h.setLastSize(cols, rows)
	return nil
}

// Close tears a PTY down via the SIGTERM→SIGKILL ladder and removes it from
// the registry. Idempotent: closing an unknown or already-closed id is OK.
func (e *Engine) Close(id string) error {
	h, ok := e.get(id)
	if !ok {
		return nil
	}

	signalTerm(h.master, h.cmd)

	select {
	case <-h.done:
		return nil
	case <-time.After(closeGrace):
	}

	signalKill(h.master, h.cmd)
	<-h.done
	return nil
}

// WarmPool tops up the pre-spawned pool to n; non-blocking and idempotent.
func (e *Engine) WarmPool(n int) {
	e.pool.setDepth(n)
}

// GetCwd returns the current working directory of the PTY's shell process
// (see foregroundPID), best-effort; the cwd of a foreground job the shell is
// running is not looked up. Never returns an error the caller should treat
// as fatal.
func (e *Engine) GetCwd(id string) (string, error) {
	h, ok := e.get(id)
	if !ok {
		return "", fmt.Errorf("get cwd %s: %w", id, ErrUnknownID)
	}
	pid := foregroundPID(h.master, h.cmd)
	cwd, err := introspectCwd(pid)
	if err != nil {
		return "", nil
	}
	return cwd, nil
}

// Shutdown closes every live PTY, joining readers with a 500 ms budget each
// before the process exits.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.handles))
	for id := range e.handles {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, ok := e.get(id)
			if !ok {
				return
			}
			signalTerm(h.master, h.cmd)
			select {
			case <-h.done:
			case <-time.After(500 * time.Millisecond):
				signalKill(h.master, h.cmd)
				<-h.done
			}
		}()
	}
	wg.Wait()
}
