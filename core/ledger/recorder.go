package ledger

import (
	"sync"

	"tokensale/core/events"
	"tokensale/core/types"
)

// recorderCapacity bounds the committed event log kept for late
// subscribers.
const recorderCapacity = 1024

// EventEntry is one committed event with its position in the stream.
// Sequence numbers start at 1 and never reuse.
type EventEntry struct {
	Seq   uint64       `json:"seq"`
	Event *types.Event `json:"event"`
}

type subscriber struct {
	ch chan EventEntry
}

// Recorder collects engine events. While an operation is in flight the
// events buffer; they reach the log and the subscribers only when the
// operation commits. Discarded operations leave no trace in the stream.
type Recorder struct {
	mu        sync.Mutex
	buffering bool
	pending   []events.Event
	log       []EventEntry
	seq       uint64
	subs      map[int]*subscriber
	nextSub   int
}

func newRecorder() *Recorder {
	return &Recorder{subs: make(map[int]*subscriber)}
}

type eventRenderer interface {
	Event() *types.Event
}

func renderEvent(evt events.Event) *types.Event {
	if r, ok := evt.(eventRenderer); ok {
		if rendered := r.Event(); rendered != nil {
			return rendered
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Emit implements events.Emitter for the engines.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buffering {
		r.pending = append(r.pending, evt)
		return
	}
	r.publishLocked(evt)
}

func (r *Recorder) begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffering = true
	r.pending = nil
}

func (r *Recorder) discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffering = false
	r.pending = nil
}

func (r *Recorder) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffering = false
	for _, evt := range r.pending {
		r.publishLocked(evt)
	}
	r.pending = nil
}

func (r *Recorder) publishLocked(evt events.Event) {
	r.seq++
	entry := EventEntry{Seq: r.seq, Event: renderEvent(evt)}
	r.log = append(r.log, entry)
	if len(r.log) > recorderCapacity {
		r.log = r.log[len(r.log)-recorderCapacity:]
	}
	for _, sub := range r.subs {
		select {
		case sub.ch <- entry:
		default:
			// Slow consumers miss events; they can re-sync via cursor.
		}
	}
}

// Events returns up to limit committed entries with Seq > cursor.
func (r *Recorder) Events(cursor uint64, limit int) []EventEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > recorderCapacity {
		limit = recorderCapacity
	}
	out := make([]EventEntry, 0, limit)
	for _, entry := range r.log {
		if entry.Seq <= cursor {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Subscribe registers a live consumer. Entries already committed past the
// cursor return as backlog; later commits arrive on the channel. cancel
// releases the subscription and closes the channel.
func (r *Recorder) Subscribe(cursor uint64, buffer int) ([]EventEntry, <-chan EventEntry, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buffer <= 0 {
		buffer = 64
	}
	backlog := make([]EventEntry, 0)
	for _, entry := range r.log {
		if entry.Seq > cursor {
			backlog = append(backlog, entry)
		}
	}
	id := r.nextSub
	r.nextSub++
	sub := &subscriber{ch: make(chan EventEntry, buffer)}
	r.subs[id] = sub
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
			close(sub.ch)
		})
	}
	return backlog, sub.ch, cancel
}

// Seq reports the sequence number of the newest committed event.
func (r *Recorder) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}
