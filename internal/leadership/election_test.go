package leadership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// memLock is an in-memory stand-in for the few Redis commands the election uses.
type memLock struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemLock() *memLock {
	return &memLock{keys: make(map[string]string)}
}

func (m *memLock) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (m *memLock) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memLock) Expire(_ context.Context, key string, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return redis.NewBoolResult(ok, nil)
}

func (m *memLock) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[keys[0]] == args[0].(string) {
		delete(m.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (m *memLock) Close() error { return nil }

func TestSingleLeaderAndHandover(t *testing.T) {
	ctx := context.Background()
	lock := newMemLock()

	a := NewElectionWithClient(lock, ElectionConfig{InstanceID: "a"}, zerolog.Nop())
	b := NewElectionWithClient(lock, ElectionConfig{InstanceID: "b"}, zerolog.Nop())

	a.attemptLeadership(ctx)
	b.attemptLeadership(ctx)

	if !a.IsLeader() || b.IsLeader() {
		t.Fatalf("leaders: a=%v b=%v, want only a", a.IsLeader(), b.IsLeader())
	}
	if got := <-a.LeaderCh(); !got {
		t.Fatal("expected leadership notification for a")
	}

	// Renewal keeps a in charge.
	a.attemptLeadership(ctx)
	if !a.IsLeader() {
		t.Fatal("a lost leadership on renewal")
	}

	leader, err := b.GetLeader(ctx)
	if err != nil || leader != "a" {
		t.Fatalf("GetLeader = %q, %v", leader, err)
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.IsLeader() {
		t.Fatal("a still leader after Stop")
	}

	b.attemptLeadership(ctx)
	if !b.IsLeader() {
		t.Fatal("b did not take over after a released")
	}
}

func TestDefaultsApplied(t *testing.T) {
	e := NewElectionWithClient(newMemLock(), ElectionConfig{}, zerolog.Nop())
	if e.config.ElectionKey != defaultElectionKey || e.config.LeaseDuration != defaultLeaseDuration {
		t.Fatalf("config = %+v", e.config)
	}
	if e.InstanceID() == "" {
		t.Fatal("expected generated instance id")
	}
}
