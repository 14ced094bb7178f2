package engine

import (
	"context"

	"github.com/kbukum/flowkit/stream"
)

// worker is one call into user code. It holds a bulkhead slot while the
// call runs and gives the slot up whenever the call blocks on a downstream
// queue, so a full queue can never starve the stage that would drain it.
type worker struct {
	x   *execution
	s   *stage
	ctx context.Context
	// lin is carried by every item the call emits.
	lin     lineage
	held    bool
	emitted bool
}

func (w *worker) run(callCtx context.Context, fn call) error {
	if err := w.x.slots.Acquire(w.ctx); err != nil {
		return err
	}
	w.held = true
	defer func() {
		if w.held {
			w.x.slots.Release()
			w.held = false
		}
	}()

	return traced(timed(logged(fn, w.s), w.x.metrics, w.s), w.x.opts.RunID, w.s)(callCtx)
}

// emit is the processor.Emit handed to transforms.
func (w *worker) emit(item stream.Item) error {
	w.emitted = true
	if w.held {
		w.x.slots.Release()
		w.held = false
	}
	if err := w.x.route(w.ctx, w.s, "", item, w.lin); err != nil {
		return err
	}
	if err := w.x.slots.Acquire(w.ctx); err != nil {
		return err
	}
	w.held = true
	return nil
}
