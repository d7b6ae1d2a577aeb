package shellintegration

import (
	"testing"
	"time"
)

func newTestProcessor(t *testing.T) (*Processor, *[][]byte, *[]Transition) {
	t.Helper()
	var writes [][]byte
	var transitions []Transition
	p := NewProcessor(func(b []byte) error {
		writes = append(writes, append([]byte(nil), b...))
		return nil
	}, func(tr Transition) {
		transitions = append(transitions, tr)
	})
	return p, &writes, &transitions
}

// An OSC split across two chunks must reassemble, strip cleanly, and report
// the running transition.
func TestChunkReassembly(t *testing.T) {
	p, _, transitions := newTestProcessor(t)

	out1 := p.Feed([]byte("output\x1b]7770;pre"))
	if string(out1) != "output" {
		t.Fatalf("first chunk: got %q, want %q", out1, "output")
	}

	out2 := p.Feed([]byte("exec\x07more"))
	if string(out2) != "more" {
		t.Fatalf("second chunk: got %q, want %q", out2, "more")
	}

	if len(*transitions) != 1 || (*transitions)[0].Status != StatusRunning {
		t.Fatalf("expected a single running transition, got %+v", *transitions)
	}
}

// Concatenating cleaned output equals the input with all complete OSC
// sequences removed, however the stream is partitioned into chunks.
func TestOSCRoundTripArbitraryPartition(t *testing.T) {
	full := "before\x1b]7770;preexec\x07middle\x1b]7770;precmd;0\x07after"
	want := "beforemiddleafter"

	splits := [][]int{{6}, {6, 10}, {len(full) - 1}, {3, 30, 40}}
	for _, cuts := range splits {
		p, _, _ := newTestProcessor(t)
		var got []byte
		prev := 0
		for _, c := range append(cuts, len(full)) {
			if c < prev || c > len(full) {
				continue
			}
			got = append(got, p.Feed([]byte(full[prev:c]))...)
			prev = c
		}
		if string(got) != want {
			t.Fatalf("cuts=%v: got %q, want %q", cuts, got, want)
		}
	}
}

func TestPrecmdNonZeroIsError(t *testing.T) {
	p, _, transitions := newTestProcessor(t)
	p.Feed([]byte("\x1b]7770;preexec\x07"))
	p.Feed([]byte("\x1b]7770;precmd;1\x07"))

	status, exit := p.Status()
	if status != StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	if exit == nil || *exit != 1 {
		t.Fatalf("exit = %v, want 1", exit)
	}
	if len(*transitions) != 2 || (*transitions)[1].Status != StatusError {
		t.Fatalf("transitions = %+v", *transitions)
	}
}

// A quiet prompt-shaped line 2.1s after preexec with no hook activity must
// trigger re-injection within 1.6s.
func TestUnhookedSubshellTriggersReinjection(t *testing.T) {
	if testing.Short() {
		t.Skip("timer-based detection test skipped in -short mode")
	}
	p, writes, _ := newTestProcessor(t)
	p.Feed([]byte("\x1b]7770;preexec\x07"))

	time.Sleep(2100 * time.Millisecond)
	p.Feed([]byte("user@host:~$ "))

	deadline := time.Now().Add(1600 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(*writes) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(*writes) == 0 {
		t.Fatal("expected reinjection to have written the hook script to the PTY")
	}
}
