package store

import (
	"database/sql"
	"fmt"
)

// StateStore persists small keyed blobs of client state, such as the
// serialized session. Values are sealed at rest when a Sealer is set.
type StateStore struct {
	db     *sql.DB
	sealer *Sealer
}

func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

// WithSealer returns a copy of the store that seals values on write and
// opens sealed values on read.
func (s *StateStore) WithSealer(sealer *Sealer) *StateStore {
	return &StateStore{db: s.db, sealer: sealer}
}

// Get returns the value for key, or nil if the key is absent.
func (s *StateStore) Get(key string) ([]byte, error) {
	var value []byte
	var sealed int
	err := s.db.QueryRow(`SELECT value, sealed FROM client_state WHERE key = ?`, key).Scan(&value, &sealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client state: %w", err)
	}

	if sealed == 0 {
		return value, nil
	}
	if s.sealer == nil {
		return nil, fmt.Errorf("get client state %q: value is sealed and no passphrase is configured", key)
	}
	plain, err := s.sealer.Open(value)
	if err != nil {
		return nil, fmt.Errorf("open client state %q: %w", key, err)
	}
	return plain, nil
}

func (s *StateStore) Put(key string, value []byte) error {
	sealed := 0
	if s.sealer != nil {
		var err error
		value, err = s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("seal client state %q: %w", key, err)
		}
		sealed = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO client_state (key, value, sealed) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, sealed = excluded.sealed, updated_at = CURRENT_TIMESTAMP`,
		key, value, sealed,
	)
	if err != nil {
		return fmt.Errorf("put client state: %w", err)
	}
	return nil
}

func (s *StateStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM client_state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}
	return nil
}
