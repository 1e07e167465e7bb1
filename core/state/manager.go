package state

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"tokensale/storage"
)

// kvPrefix namespaces ledger state inside the backing database so operational
// records (schema version, bank accounts) cannot collide with engine keys.
var kvPrefix = []byte("kv/")

func kvKey(key []byte) []byte {
	out := make([]byte, len(kvPrefix)+len(key))
	copy(out, kvPrefix)
	copy(out[len(kvPrefix):], key)
	return out
}

// Manager exposes the durable keyed state the sale engines run on. Values are
// RLP encoded; callers hand in the stored representation they want persisted
// and a matching destination on reads.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) raw(key []byte) ([]byte, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.raw(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeKV(data, out)
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	stored := kvKey(key)
	data, err := m.raw(stored)
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
	return m.db.Put(stored, encoded)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.raw(kvKey(key))
	if err != nil {
		return err
	}
	return decodeKVList(data, out)
}

// Begin opens an overlay transaction over the committed state. All writes are
// buffered until Commit; Discard drops them. Reads observe buffered writes
// first, then fall through to the committed view.
func (m *Manager) Begin() *Txn {
	return &Txn{
		base:   m,
		writes: make(map[string][]byte),
	}
}

func decodeKV(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func decodeKVList(data []byte, out interface{}) error {
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// appendToList decodes the stored byte-slice list, appends value unless it is
// already present, and returns the re-encoded list. A nil return with nil
// error signals the value was already present and no write is needed.
func appendToList(data []byte, value []byte) ([]byte, error) {
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return nil, err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil, nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return rlp.EncodeToBytes(list)
}
