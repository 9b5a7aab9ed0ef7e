package proc

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks every live child of the current race attempt. The
// race controller registers each launch and sweeps the registry on
// every exit path, which is what guarantees no orphaned process
// survives an attempt regardless of how it ended.
type Registry struct {
	procs *xsync.MapOf[string, Handle]
}

func NewRegistry() *Registry {
	return &Registry{procs: xsync.NewMapOf[string, Handle]()}
}

func (r *Registry) Add(h Handle) {
	r.procs.Store(h.Name(), h)
}

// Live returns the handles of all registered processes that have not
// exited yet.
func (r *Registry) Live() []Handle {
	var live []Handle
	r.procs.Range(func(_ string, h Handle) bool {
		if h.Alive() {
			live = append(live, h)
		}
		return true
	})
	return live
}

// Sweep terminates every live process: SIGTERM first, then after the
// grace period SIGKILL for the survivors. It blocks until every
// process has exited and clears the registry.
func (r *Registry) Sweep(grace time.Duration) {
	live := r.Live()
	for _, h := range live {
		_ = h.Terminate()
	}

	deadline := time.Now().Add(grace)
	for _, h := range live {
		select {
		case <-h.Done():
		case <-time.After(time.Until(deadline)):
		}
	}

	for _, h := range live {
		if h.Alive() {
			_ = h.Kill()
			<-h.Done()
		}
	}
	r.procs.Clear()
}
