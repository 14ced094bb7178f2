package engine

import (
	"sync"
	"sync/atomic"

	"github.com/kbukum/flowkit/stream"
)

// tracker advances one source's checkpoint over fully handled items.
type tracker struct {
	source string
	report func(stream.Cursor)

	mu       sync.Mutex
	issued   uint64
	head     uint64 // lowest sequence not yet completed
	finished map[uint64]stream.Cursor
	last     stream.Cursor
}

func newTracker(source string, report func(stream.Cursor)) *tracker {
	return &tracker{source: source, report: report, finished: make(map[uint64]stream.Cursor)}
}

// issue returns a ticket holding one reference for the caller.
func (tr *tracker) issue(cursor stream.Cursor) *ticket {
	tr.mu.Lock()
	seq := tr.issued
	tr.issued++
	tr.mu.Unlock()
	t := &ticket{tracker: tr, seq: seq, cursor: cursor}
	t.refs.Store(1)
	return t
}

func (tr *tracker) complete(t *ticket) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.finished[t.seq] = t.cursor
	advanced := false
	for {
		c, ok := tr.finished[tr.head]
		if !ok {
			break
		}
		delete(tr.finished, tr.head)
		tr.head++
		if !c.IsZero() {
			tr.last = c
			advanced = true
		}
	}
	// Reported under the lock so consumers see cursors in source order.
	if advanced && tr.report != nil {
		tr.report(tr.last)
	}
}

// checkpoint returns the last reported cursor.
func (tr *tracker) checkpoint() stream.Cursor {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.last
}

// ticket is a source item's share of outstanding work.
type ticket struct {
	tracker *tracker
	seq     uint64
	cursor  stream.Cursor
	refs    atomic.Int64
}

func (t *ticket) release() {
	if t.refs.Add(-1) == 0 {
		t.tracker.complete(t)
	}
}

// lineage is the set of source tickets an in-flight item descends from. An
// envelope owns one reference on each ticket of its lineage.
type lineage []*ticket

func (l lineage) retain() {
	for _, t := range l {
		t.refs.Add(1)
	}
}

// release drops the references newest first, so a lineage that completes a
// run of tickets advances the checkpoint once rather than once per ticket.
func (l lineage) release() {
	for i := len(l) - 1; i >= 0; i-- {
		l[i].release()
	}
}

// cursor is the resumption context reported alongside errors: the newest
// ticket the item descends from.
func (l lineage) cursor() stream.Cursor {
	if len(l) == 0 {
		return ""
	}
	return l[len(l)-1].cursor
}

type envelope struct {
	item stream.Item
	lin  lineage
}
