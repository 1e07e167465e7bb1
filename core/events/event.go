package events

// Event is a structured state change emitted by the ledger engines.
type Event interface {
	EventType() string
}

// Emitter delivers events to downstream consumers such as the RPC stream
// and the metrics pipeline.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards everything. Engines fall back to it until a real
// emitter is attached.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
