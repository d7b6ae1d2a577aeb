//go:build darwin

package pty

/*
#cgo LDFLAGS: -lproc
#include <libproc.h>
#include <stdlib.h>
#include <string.h>

static int dispatcher_vnode_cwd(pid_t pid, char *out, size_t outlen) {
	struct proc_vnodepathinfo vpi;
	int n = proc_pidinfo(pid, PROC_PIDVNODEPATHINFO, 0, &vpi, sizeof(vpi));
	if (n <= 0) {
		return -1;
	}
	size_t len = strnlen(vpi.pvi_cdir.vip_path, sizeof(vpi.pvi_cdir.vip_path));
	if (len >= outlen) {
		len = outlen - 1;
	}
	memcpy(out, vpi.pvi_cdir.vip_path, len);
	out[len] = '\0';
	return 0;
}
*/
import "C"

import "unsafe"

// introspectCwd uses libproc's PROC_PIDVNODEPATHINFO to read the current
// directory of pid (the PTY's shell process; see foregroundPID).
func introspectCwd(pid int) (string, error) {
	if pid <= 0 {
		return "", ErrIntrospectionUnavailable
	}
	buf := make([]byte, 4096)
	rc := C.dispatcher_vnode_cwd(C.pid_t(pid), (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
	if rc != 0 {
		return "", ErrIntrospectionUnavailable
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0]))), nil
}
