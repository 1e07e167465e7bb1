package ledger

import (
	"fmt"
	"testing"

	"tokensale/core/events"
	"tokensale/core/types"
)

type plainEvent string

func (p plainEvent) EventType() string { return string(p) }

type renderedEvent struct {
	label string
}

func (r renderedEvent) EventType() string { return "rendered" }

func (r renderedEvent) Event() *types.Event {
	return &types.Event{Type: "rendered", Attributes: map[string]string{"label": r.label}}
}

func TestRecorderBuffersUntilFlush(t *testing.T) {
	r := newRecorder()
	r.begin()
	r.Emit(plainEvent("first"))
	r.Emit(plainEvent("second"))
	if got := r.Seq(); got != 0 {
		t.Fatalf("seq while buffering = %d, want 0", got)
	}
	r.flush()
	entries := r.Events(0, 10)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Seq != 1 || entries[1].Seq != 2 {
		t.Fatalf("sequence = %d, %d", entries[0].Seq, entries[1].Seq)
	}
}

func TestRecorderDiscardDropsBuffered(t *testing.T) {
	r := newRecorder()
	r.begin()
	r.Emit(plainEvent("doomed"))
	r.discard()
	if entries := r.Events(0, 10); len(entries) != 0 {
		t.Fatalf("entries after discard = %d, want 0", len(entries))
	}
	// The next operation starts clean.
	r.begin()
	r.Emit(plainEvent("kept"))
	r.flush()
	entries := r.Events(0, 10)
	if len(entries) != 1 || entries[0].Seq != 1 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRecorderTrimsLogAtCapacity(t *testing.T) {
	r := newRecorder()
	total := recorderCapacity + 25
	for i := 0; i < total; i++ {
		r.Emit(plainEvent(fmt.Sprintf("evt-%d", i)))
	}
	entries := r.Events(0, 0)
	if len(entries) != recorderCapacity {
		t.Fatalf("retained = %d, want %d", len(entries), recorderCapacity)
	}
	if entries[0].Seq != uint64(total-recorderCapacity+1) {
		t.Fatalf("oldest retained seq = %d", entries[0].Seq)
	}
	if r.Seq() != uint64(total) {
		t.Fatalf("seq = %d, want %d", r.Seq(), total)
	}
}

func TestRecorderDropsSlowConsumer(t *testing.T) {
	r := newRecorder()
	_, ch, cancel := r.Subscribe(0, 1)
	defer cancel()

	r.Emit(plainEvent("a"))
	r.Emit(plainEvent("b"))
	r.Emit(plainEvent("c"))

	got := 0
	for {
		select {
		case <-ch:
			got++
			continue
		default:
		}
		break
	}
	if got != 1 {
		t.Fatalf("delivered = %d, want 1 (buffer full drops the rest)", got)
	}
	// The dropped entries remain readable through the cursor API.
	if entries := r.Events(1, 10); len(entries) != 2 {
		t.Fatalf("resync entries = %d, want 2", len(entries))
	}
}

func TestRecorderCancelClosesChannel(t *testing.T) {
	r := newRecorder()
	_, ch, cancel := r.Subscribe(0, 4)
	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
	// Emitting after cancel must not panic or deliver.
	r.Emit(plainEvent("late"))
}

func TestRecorderRendersEvents(t *testing.T) {
	r := newRecorder()
	r.Emit(renderedEvent{label: "detail"})
	r.Emit(plainEvent("bare"))

	entries := r.Events(0, 10)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Event.Attributes["label"] != "detail" {
		t.Fatalf("rendered attributes = %+v", entries[0].Event.Attributes)
	}
	if entries[1].Event.Type != "bare" || len(entries[1].Event.Attributes) != 0 {
		t.Fatalf("plain event = %+v", entries[1].Event)
	}
}

var _ events.Event = plainEvent("")
