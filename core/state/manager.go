package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"zlend/storage"
)

// Manager mediates all access to persisted protocol state. Values are RLP
// encoded and stored under namespaced keys in the backing key-value database.
//
// Writes are staged in an in-memory journal and only reach the database when
// Commit is called; Discard drops everything staged since the last commit.
// The node wraps every state-mutating operation in this commit/discard cycle
// so a failed operation leaves no partial state behind.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewManager constructs a state manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// KVPut stages the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.pending[string(key)] = encoded
	delete(m.deleted, string(key))
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed, staged writes included.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	if _, gone := m.deleted[string(key)]; gone {
		return false, nil
	}
	data, ok := m.pending[string(key)]
	if !ok {
		exists, err := m.db.Has(key)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
		data, err = m.db.Get(key)
		if err != nil {
			return false, err
		}
	}
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

// KVDelete stages removal of the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	delete(m.pending, string(key))
	m.deleted[string(key)] = struct{}{}
	return nil
}

// Commit flushes every staged write to the backing database.
func (m *Manager) Commit() error {
	for key := range m.deleted {
		if err := m.db.Delete([]byte(key)); err != nil {
			return err
		}
	}
	for key, value := range m.pending {
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	m.pending = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
	return nil
}

// Discard drops every staged write since the last commit.
func (m *Manager) Discard() {
	m.pending = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
}
