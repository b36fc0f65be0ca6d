package resolver

import (
	"context"
	"sync/atomic"

	"github.com/pageforge/docserve/internal/syncval"
)

// taskSet tracks in-flight request tasks by identity so a cancelled
// transport can stop a request before any response delivery. Cancel
// removes the handle; results computed after cancellation are
// discarded by the caller checking its context.
type taskSet struct {
	nextID  atomic.Uint64
	handles *syncval.Protected[map[uint64]context.CancelFunc]
}

func newTaskSet() *taskSet {
	return &taskSet{handles: syncval.New(map[uint64]context.CancelFunc{})}
}

// begin registers a cancellable handle for one request and returns
// its id and derived context.
func (t *taskSet) begin(ctx context.Context) (uint64, context.Context) {
	id := t.nextID.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	t.handles.Mutate(func(m *map[uint64]context.CancelFunc) {
		next := make(map[uint64]context.CancelFunc, len(*m)+1)
		for k, v := range *m {
			next[k] = v
		}
		next[id] = cancel
		*m = next
	})
	return id, ctx
}

// finish drops the handle. Safe to call after cancel.
func (t *taskSet) finish(id uint64) {
	var cancel context.CancelFunc
	t.handles.Mutate(func(m *map[uint64]context.CancelFunc) {
		next := make(map[uint64]context.CancelFunc, len(*m))
		for k, v := range *m {
			if k == id {
				cancel = v
				continue
			}
			next[k] = v
		}
		*m = next
	})
	if cancel != nil {
		cancel()
	}
}

// cancel aborts one in-flight request by id.
func (t *taskSet) cancel(id uint64) {
	if c, ok := t.handles.Get()[id]; ok {
		c()
	}
	t.finish(id)
}

func (t *taskSet) len() int { return len(t.handles.Get()) }
