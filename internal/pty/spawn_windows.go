//go:build windows

package pty

import (
	"context"
	"os"
	"os/exec"

	"github.com/UserExistsError/conpty"
)

// spawnShell resolves comspec (defaulting to cmd.exe) and starts it inside a
// fresh ConPTY of the given size in cwd.
func spawnShell(cwd string, cols, rows uint16) (ptyIO, *exec.Cmd, error) {
	shell := os.Getenv("comspec")
	if shell == "" {
		shell = "cmd.exe"
	}
	cp, err := conpty.Start(shell,
		conpty.ConPtyDimensions(int(cols), int(rows)),
		conpty.ConPtyWorkDir(cwd),
	)
	if err != nil {
		return nil, nil, err
	}
	// conpty.ConPty owns the child process lifecycle itself; there is no
	// separate *exec.Cmd to track, so the registry's cmd field stays nil on
	// this platform and Close/Wait go through the conpty handle directly.
	return cp, nil, nil
}

func resizeMaster(master ptyIO, cols, rows uint16) error {
	cp, ok := master.(*conpty.ConPty)
	if !ok {
		return os.ErrInvalid
	}
	return cp.Resize(int(cols), int(rows))
}

// foregroundPID cannot be resolved on this platform: conpty owns the hosted
// child and does not surface its process id, so cwd introspection has nothing
// to walk. See cwd_windows.go.
func foregroundPID(master ptyIO, cmd *exec.Cmd) int {
	return 0
}

// waitExit blocks until the ConPTY-hosted child terminates.
func waitExit(master ptyIO, cmd *exec.Cmd) *int {
	cp, ok := master.(*conpty.ConPty)
	if !ok {
		return nil
	}
	code, err := cp.Wait(context.Background())
	if err != nil {
		return nil
	}
	n := int(code)
	return &n
}

// signalTerm has no graceful-termination signal on ConPTY; the first
// close-ladder rung is a no-op here and the second (signalKill) does the
// real work by killing the hosted process directly.
func signalTerm(master ptyIO, cmd *exec.Cmd) {}

// signalKill force-kills the ConPTY-hosted child so the pending cp.Wait in
// waitExit unblocks; ConPTY has no SIGKILL equivalent reachable from cmd
// since there is no separate *exec.Cmd on this platform.
func signalKill(master ptyIO, cmd *exec.Cmd) {
	cp, ok := master.(*conpty.ConPty)
	if !ok {
		return
	}
	_ = cp.Kill()
}
