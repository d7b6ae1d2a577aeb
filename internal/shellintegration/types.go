// Package shellintegration turns a raw PTY byte stream into a cleaned,
// emulator-bound stream plus per-session run-state transitions, by parsing a
// private OSC 7770 protocol the injected shell hooks emit, and re-injects
// those hooks into unhooked sub-shells (e.g. after ssh).
package shellintegration

// Status mirrors a TerminalSession's run-state as derived from OSC 7770.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Transition is emitted every time an OSC 7770 sequence changes status.
type Transition struct {
	Status   Status
	ExitCode *int // set only on precmd transitions
}
