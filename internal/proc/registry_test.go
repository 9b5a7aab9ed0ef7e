package proc_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/torcs-league/raceman/internal/proc"
)

// stubbornHandle ignores Terminate and only dies on Kill, exercising
// the TERM-then-KILL escalation.
type stubbornHandle struct {
	name       string
	stubborn   bool
	mu         sync.Mutex
	done       chan struct{}
	terminated bool
	killed     bool
}

func newStubborn(name string, stubborn bool) *stubbornHandle {
	return &stubbornHandle{name: name, stubborn: stubborn, done: make(chan struct{})}
}

func (h *stubbornHandle) exit() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *stubbornHandle) Name() string { return h.name }

func (h *stubbornHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *stubbornHandle) Done() <-chan struct{} { return h.done }

func (h *stubbornHandle) ExitErr() error { return nil }

func (h *stubbornHandle) Terminate() error {
	h.mu.Lock()
	h.terminated = true
	h.mu.Unlock()
	if !h.stubborn {
		h.exit()
	}
	return nil
}

func (h *stubbornHandle) Kill() error {
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	h.exit()
	return nil
}

func TestRegistry_SweepEscalatesToKill(t *testing.T) {
	reg := proc.NewRegistry()
	polite := newStubborn("polite", false)
	stubborn := newStubborn("stubborn", true)
	reg.Add(polite)
	reg.Add(stubborn)

	start := time.Now()
	reg.Sweep(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, polite.Alive())
	assert.False(t, stubborn.Alive())
	assert.True(t, polite.terminated)
	assert.False(t, polite.killed, "a process that honors TERM must not be killed")
	assert.True(t, stubborn.killed)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond,
		"grace period must elapse before escalation")
	assert.Empty(t, reg.Live())
}

func TestRegistry_SweepSkipsAlreadyDead(t *testing.T) {
	reg := proc.NewRegistry()
	dead := newStubborn("dead", true)
	dead.exit()
	reg.Add(dead)

	reg.Sweep(10 * time.Millisecond)
	assert.False(t, dead.terminated)
	assert.False(t, dead.killed)
}

func TestRegistry_LiveFiltersExited(t *testing.T) {
	reg := proc.NewRegistry()
	a := newStubborn("a", false)
	b := newStubborn("b", false)
	reg.Add(a)
	reg.Add(b)
	b.exit()

	live := reg.Live()
	assert.Len(t, live, 1)
	assert.Equal(t, "a", live[0].Name())
}
