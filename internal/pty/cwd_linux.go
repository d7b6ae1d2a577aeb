//go:build linux

package pty

import (
	"fmt"
	"os"
)

// introspectCwd reads /proc/<pid>/cwd.
func introspectCwd(pid int) (string, error) {
	if pid <= 0 {
		return "", ErrIntrospectionUnavailable
	}
	link, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	if err != nil {
		return "", ErrIntrospectionUnavailable
	}
	return link, nil
}
