package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeLeader struct {
	leader  atomic.Bool
	ch      chan bool
	started atomic.Bool
	stopped atomic.Bool
}

func newFakeLeader() *fakeLeader {
	return &fakeLeader{ch: make(chan bool, 1)}
}

func (f *fakeLeader) Start(context.Context) error { f.started.Store(true); return nil }
func (f *fakeLeader) Stop() error                 { f.stopped.Store(true); return nil }
func (f *fakeLeader) IsLeader() bool              { return f.leader.Load() }
func (f *fakeLeader) LeaderCh() <-chan bool       { return f.ch }

func (f *fakeLeader) set(v bool) {
	f.leader.Store(v)
	f.ch <- v
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLeaderAwareFollowsLeadership(t *testing.T) {
	h := newHarness(t)
	election := newFakeLeader()
	la := NewLeaderAware(h.sweeper, election, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := la.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !election.started.Load() {
		t.Fatal("election not started")
	}
	if la.Running() {
		t.Fatal("loop running before leadership")
	}

	election.set(true)
	waitFor(t, "loop to start", la.Running)
	if !la.IsLeader() {
		t.Fatal("IsLeader = false")
	}

	election.set(false)
	waitFor(t, "loop to stop", func() bool { return !la.Running() })

	election.set(true)
	waitFor(t, "loop to restart", la.Running)

	if err := la.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if la.Running() || !election.stopped.Load() {
		t.Fatal("Stop did not halt loop and election")
	}
}
