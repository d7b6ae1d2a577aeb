//go:build windows

package pty

// introspectCwd is unavailable on Windows. The ConPTY-hosted child's pid
// never reaches this package (see foregroundPID in spawn_windows.go), and
// even with one, another process's current directory lives in its PEB —
// reading it means NtQueryInformationProcess plus ReadProcessMemory against
// undocumented structure offsets. Callers already treat the error as "no cwd
// known" and carry on, so new terminals on this platform simply start in the
// project cwd instead of inheriting a sibling's.
func introspectCwd(pid int) (string, error) {
	return "", ErrIntrospectionUnavailable
}
