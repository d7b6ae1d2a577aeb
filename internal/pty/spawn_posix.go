//go:build !windows

package pty

import (
	"os"
	"os/exec"

	ptylib "github.com/creack/pty/v2"
	"golang.org/x/sys/unix"
)

// spawnShell resolves $SHELL (defaulting to /bin/bash), starts it attached to
// a fresh PTY of the given size in cwd, and returns the master end.
func spawnShell(cwd string, cols, rows uint16) (ptyIO, *exec.Cmd, error) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	cmd := exec.Command(shell)
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	master, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, nil, err
	}
	return master, cmd, nil
}

func resizeMaster(master ptyIO, cols, rows uint16) error {
	f, ok := master.(*os.File)
	if !ok {
		return os.ErrInvalid
	}
	return ptylib.Setsize(f, &ptylib.Winsize{Cols: cols, Rows: rows})
}

// foregroundPID returns the pid whose cwd should be introspected: the shell's
// own pid, since POSIX cwd introspection (/proc, libproc) walks the process
// directly rather than needing the controlling-terminal foreground group.
func foregroundPID(master ptyIO, cmd *exec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}

// waitExit blocks until the child terminates and returns its exit code, or
// nil if the code could not be determined (killed by signal, wait error).
func waitExit(master ptyIO, cmd *exec.Cmd) *int {
	err := cmd.Wait()
	if err == nil {
		code := 0
		return &code
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		if code >= 0 {
			return &code
		}
	}
	return nil
}

// signalTerm sends SIGTERM to the child, the first rung of the close ladder.
func signalTerm(master ptyIO, cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(unix.SIGTERM)
}

// signalKill force-kills the child, the final rung of the close ladder.
func signalKill(master ptyIO, cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
