package types

// Event represents a typed event emitted by the sale ledger during state
// transitions. Attributes carry the identifiers and amounts downstream
// indexers need, rendered as strings.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Copy returns a deep copy so stream buffers can retain events without
// sharing the attribute map with the emitter.
func (e *Event) Copy() *Event {
	if e == nil {
		return nil
	}
	clone := &Event{Type: e.Type}
	if e.Attributes != nil {
		clone.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			clone.Attributes[k] = v
		}
	}
	return clone
}
