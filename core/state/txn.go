package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Txn buffers KV writes on top of a Manager so a whole ledger operation can be
// committed in one sweep or discarded without touching the committed view.
// A Txn is not safe for concurrent use; the ledger serialises operations.
type Txn struct {
	base     *Manager
	writes   map[string][]byte
	order    []string
	finished bool
}

func (t *Txn) raw(key []byte) ([]byte, error) {
	if data, ok := t.writes[string(key)]; ok {
		return data, nil
	}
	return t.base.raw(key)
}

func (t *Txn) put(key []byte, data []byte) {
	k := string(key)
	if _, seen := t.writes[k]; !seen {
		t.order = append(t.order, k)
	}
	t.writes[k] = data
}

// KVPut buffers the RLP encoding of value under the supplied key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if t.finished {
		return fmt.Errorf("kv: transaction already finished")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.put(kvKey(key), encoded)
	return nil
}

// KVGet reads through the overlay into committed state.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := t.raw(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeKV(data, out)
}

// KVAppend appends to the byte-slice list under key, observing buffered writes.
func (t *Txn) KVAppend(key []byte, value []byte) error {
	if t.finished {
		return fmt.Errorf("kv: transaction already finished")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	stored := kvKey(key)
	data, err := t.raw(stored)
	if err != nil {
		return err
	}
	encoded, err := appendToList(data, value)
	if err != nil {
		return err
	}
	if encoded == nil {
		return nil
	}
	t.put(stored, encoded)
	return nil
}

// KVGetList reads the list under key through the overlay.
func (t *Txn) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := t.raw(kvKey(key))
	if err != nil {
		return err
	}
	return decodeKVList(data, out)
}

// Commit flushes the buffered writes to the backing database in write order.
func (t *Txn) Commit() error {
	if t.finished {
		return fmt.Errorf("kv: transaction already finished")
	}
	t.finished = true
	for _, k := range t.order {
		if err := t.base.db.Put([]byte(k), t.writes[k]); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every buffered write.
func (t *Txn) Discard() {
	t.finished = true
	t.writes = nil
	t.order = nil
}

// Pending reports the number of buffered writes. Test helper.
func (t *Txn) Pending() int {
	return len(t.writes)
}
