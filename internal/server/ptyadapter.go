package server

import (
	"log/slog"
	"sync"

	"github.com/TheBuilderJR/dispatcher/internal/notify"
	"github.com/TheBuilderJR/dispatcher/internal/pty"
	"github.com/TheBuilderJR/dispatcher/internal/shellintegration"
	"github.com/TheBuilderJR/dispatcher/internal/workspace"
)

// ptyAdapter implements workspace.PTYEngine over a real *pty.Engine, slotting
// the shell-integration processor and output batcher into every session's
// byte path between the PTY and whatever the workspace's own Sink forwards to
// (the websocket broker, here).
type ptyAdapter struct {
	engine *pty.Engine
	notify *notify.Manager
	logger *slog.Logger

	mu    sync.Mutex
	procs map[string]*termProc

	ws *workspace.Workspace // set once via SetWorkspace before first use
}

type termProc struct {
	proc    *shellintegration.Processor
	batcher *shellintegration.Batcher
}

func newPTYAdapter(engine *pty.Engine, notifyMgr *notify.Manager, logger *slog.Logger) *ptyAdapter {
	a := &ptyAdapter{
		engine: engine,
		notify: notifyMgr,
		logger: logger,
		procs:  make(map[string]*termProc),
	}
	engine.SetOnExit(a.handleExit)
	return a
}

// SetWorkspace completes the wiring; transitions observed before this is
// called are silently dropped (there is no active workspace.Workspace yet).
func (a *ptyAdapter) SetWorkspace(ws *workspace.Workspace) {
	a.ws = ws
}

// Create satisfies workspace.PTYEngine: spawn the PTY, insert the
// shell-integration processor and batcher between it and sink, and perform
// the initial hook injection.
func (a *ptyAdapter) Create(id string, cwd string, cols, rows uint16, sink func([]byte)) error {
	batcher := shellintegration.NewBatcher(sink)
	proc := shellintegration.NewProcessor(
		func(b []byte) error { return a.engine.Write(id, b) },
		func(t shellintegration.Transition) { a.handleTransition(id, t) },
	)

	a.mu.Lock()
	a.procs[id] = &termProc{proc: proc, batcher: batcher}
	a.mu.Unlock()

	err := a.engine.Create(id, cwd, cols, rows, func(raw []byte) {
		batcher.Write(proc.Feed(raw))
	})
	if err != nil {
		a.mu.Lock()
		delete(a.procs, id)
		a.mu.Unlock()
		batcher.Stop()
		return err
	}

	proc.InjectInitial()
	return nil
}

func (a *ptyAdapter) Write(id string, data []byte) error {
	return a.engine.Write(id, data)
}

func (a *ptyAdapter) Close(id string) error {
	err := a.engine.Close(id)
	a.teardown(id)
	return err
}

func (a *ptyAdapter) GetCwd(id string) (string, error) {
	return a.engine.GetCwd(id)
}

// Resize and NoteEnterKeypress are not part of workspace.PTYEngine (resize
// has no workspace-level semantics; it's pure PTY geometry) but are used
// directly by the websocket handler.
func (a *ptyAdapter) Resize(id string, cols, rows uint16) error {
	return a.engine.Resize(id, cols, rows)
}

func (a *ptyAdapter) NoteEnterKeypress(id string) {
	a.mu.Lock()
	tp, ok := a.procs[id]
	a.mu.Unlock()
	if ok {
		tp.proc.NoteEnterKeypress()
	}
}

func (a *ptyAdapter) teardown(id string) {
	a.mu.Lock()
	tp, ok := a.procs[id]
	delete(a.procs, id)
	a.mu.Unlock()
	if ok {
		tp.batcher.Stop()
	}
}

func (a *ptyAdapter) handleTransition(id string, t shellintegration.Transition) {
	if a.ws == nil {
		return
	}
	status := workspace.TerminalStatus(t.Status)
	_ = a.ws.Terminals.UpdateStatus(id, status, t.ExitCode)

	if (status == workspace.StatusDone || status == workspace.StatusError) &&
		a.ws.Terminals.ActiveTerminalID() != id {
		a.notifyRunState(id, status, t.ExitCode)
	}
}

// handleExit marks the session broken. An unexpected death always forces
// status=error regardless of whatever the shell-integration processor last
// observed.
func (a *ptyAdapter) handleExit(ev pty.ExitEvent) {
	a.logger.Debug("pty exited", "terminal", ev.ID)
	a.teardown(ev.ID)
	if a.ws == nil {
		return
	}
	if err := a.ws.Terminals.UpdateStatus(ev.ID, workspace.StatusError, ev.ExitCode); err != nil {
		return
	}
	if a.ws.Terminals.ActiveTerminalID() != ev.ID {
		a.notifyRunState(ev.ID, workspace.StatusError, ev.ExitCode)
	}
}

func (a *ptyAdapter) notifyRunState(id string, status workspace.TerminalStatus, exitCode *int) {
	if a.notify == nil {
		return
	}
	sess, ok := a.ws.Terminals.Get(id)
	title := id
	if ok {
		title = sess.Title
	}
	a.notify.TerminalStatus(id, title, string(status), exitCode)
}
