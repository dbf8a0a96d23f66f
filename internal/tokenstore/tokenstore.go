// Package tokenstore holds the process-wide session and tells subscribers
// whenever it is replaced.
package tokenstore

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/bidwatch/internal/logging"
	"github.com/dukerupert/bidwatch/internal/model"
)

// StorageKey is the single persisted key holding the serialized session.
const StorageKey = "auth.tokens.v1"

// Persister is the storage the session survives restarts in.
// store.StateStore satisfies it.
type Persister interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

type subscriber struct {
	fn func(*model.Session)
}

// Store is the authoritative in-memory session. Persistence is best-effort.
type Store struct {
	// writeMu serializes Set so subscribers see values in call order.
	writeMu sync.Mutex

	mu      sync.RWMutex
	session *model.Session
	subs    []*subscriber

	persist Persister
	logger  *slog.Logger
}

// New loads any persisted session and returns the store. A nil persister
// keeps the session in memory only.
func New(p Persister, logger *slog.Logger) *Store {
	s := &Store{persist: p, logger: logging.Or(logger)}
	s.session = s.load()
	return s
}

func (s *Store) load() *model.Session {
	if s.persist == nil {
		return nil
	}
	raw, err := s.persist.Get(StorageKey)
	if err != nil {
		s.logger.Warn("load persisted session", "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.logger.Warn("decode persisted session", "error", err)
		return nil
	}
	if !sess.Valid() {
		return nil
	}
	return &sess
}

// Get returns a copy of the current session, or nil when signed out.
func (s *Store) Get() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.RefreshToken
}

// Set replaces the session wholesale. nil, or a session missing either
// token, clears it. Subscribers are called synchronously, in
// registration order, before Set returns. Subscribers must not call Set.
func (s *Store) Set(next *model.Session) {
	if !next.Valid() {
		next = nil
	}
	next = next.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.session = next
	subs := make([]*subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.save(next)

	for _, sub := range subs {
		sub.fn(next.Clone())
	}
}

func (s *Store) Clear() {
	s.Set(nil)
}

// save writes the session to the persister. Failures are logged and
// swallowed; the in-memory value stays authoritative.
func (s *Store) save(sess *model.Session) {
	if s.persist == nil {
		return
	}
	if sess == nil {
		if err := s.persist.Delete(StorageKey); err != nil {
			s.logger.Warn("remove persisted session", "error", err)
		}
		return
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		s.logger.Warn("encode session", "error", err)
		return
	}
	if err := s.persist.Put(StorageKey, raw); err != nil {
		s.logger.Warn("persist session", "error", err)
	}
}

// Subscribe registers fn for every subsequent Set. The returned function
// unsubscribes and is safe to call more than once.
func (s *Store) Subscribe(fn func(*model.Session)) func() {
	sub := &subscriber{fn: fn}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, existing := range s.subs {
				if existing == sub {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}
