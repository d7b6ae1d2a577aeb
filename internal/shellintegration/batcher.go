package shellintegration

import (
	"sync"
	"time"
)

// batchInterval is the flush cadence, roughly one animation frame.
const batchInterval = 16 * time.Millisecond

// Batcher coalesces a single session's emulator-bound writes, flushing once
// per tick into one bulk write. Batchers never share state across sessions;
// output from different sessions must never coalesce into one write.
type Batcher struct {
	mu      sync.Mutex
	pending []byte
	flush   func([]byte)

	ticker   *time.Ticker
	stopOnce sync.Once
	stop     chan struct{}
}

// NewBatcher starts the flush ticker immediately; call Stop to release it.
func NewBatcher(flush func([]byte)) *Batcher {
	b := &Batcher{
		flush:  flush,
		ticker: time.NewTicker(batchInterval),
		stop:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Batcher) run() {
	for {
		select {
		case <-b.ticker.C:
			b.flushPending()
		case <-b.stop:
			return
		}
	}
}

// Write appends bytes to the pending buffer; they are flushed on the next
// tick, not synchronously.
func (b *Batcher) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, p...)
	b.mu.Unlock()
}

func (b *Batcher) flushPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	out := b.pending
	b.pending = nil
	b.mu.Unlock()

	if b.flush != nil {
		b.flush(out)
	}
}

// Stop flushes whatever is pending synchronously, then goes inert: Write
// still accepts bytes but nothing flushes them again.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		b.ticker.Stop()
		close(b.stop)
		b.flushPending()
	})
}
