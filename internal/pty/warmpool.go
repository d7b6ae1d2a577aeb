package pty

import (
	"log/slog"
	"os/exec"
	"sync"
)

const warmPoolCwd = "" // pooled shells start in the daemon's own cwd; transient until adopted

// pooledPTY is an unclaimed warm-pool entry: a shell already spawned against a
// transient directory, waiting to be adopted under a caller-supplied id.
type pooledPTY struct {
	master ptyIO
	cmd    *exec.Cmd
	cols   uint16
	rows   uint16
}

// warmPool keeps up to depth pre-spawned shells ready for instant adoption by
// Create. It is non-essential: a failed top-up just means the next Create
// falls back to a direct spawn.
type warmPool struct {
	mu     sync.Mutex
	logger *slog.Logger
	depth  int
	items  []*pooledPTY
}

func newWarmPool(logger *slog.Logger) *warmPool {
	return &warmPool{logger: logger}
}

// setDepth tops up the pool to n in the background; idempotent.
func (p *warmPool) setDepth(n int) {
	p.mu.Lock()
	p.depth = n
	need := n - len(p.items)
	p.mu.Unlock()

	for i := 0; i < need; i++ {
		go p.spawnOne()
	}
}

func (p *warmPool) spawnOne() {
	master, cmd, err := spawnShell(warmPoolCwd, 80, 24)
	if err != nil {
		p.logger.Warn("warm pool spawn failed", "err", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) >= p.depth {
		// Lost the race against a shrink or a concurrent top-up; don't hoard it.
		_ = master.Close()
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return
	}
	p.items = append(p.items, &pooledPTY{master: master, cmd: cmd, cols: 80, rows: 24})
}

// claim adopts a pooled PTY if one is available, resizing it to (cols, rows).
// Returns ok=false when the pool is empty and the caller must spawn directly.
func (p *warmPool) claim(cols, rows uint16) (master ptyIO, cmd *exec.Cmd, ok bool) {
	p.mu.Lock()
	if len(p.items) == 0 {
		p.mu.Unlock()
		return nil, nil, false
	}
	item := p.items[len(p.items)-1]
	p.items = p.items[:len(p.items)-1]
	depth := p.depth
	p.mu.Unlock()

	if err := resizeMaster(item.master, cols, rows); err != nil {
		p.logger.Debug("warm pool resize on claim failed", "err", err)
	}

	// Replenish asynchronously so the pool stays near depth.
	go p.setDepth(depth)

	return item.master, item.cmd, true
}
