package tokenstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/bidwatch/internal/database"
	"github.com/dukerupert/bidwatch/internal/model"
	"github.com/dukerupert/bidwatch/internal/store"
)

func session(n int) *model.Session {
	return &model.Session{
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
		TokenType:    "bearer",
	}
}

type failingPersister struct{}

func (failingPersister) Get(string) ([]byte, error) { return nil, errors.New("disk on fire") }
func (failingPersister) Put(string, []byte) error { return errors.New("quota exceeded") }
func (failingPersister) Delete(string) error { return errors.New("quota exceeded") }

func TestSubscribersSeeEverySetInOrder(t *testing.T) {
	s := New(NewMemory(), slog.Default())

	var got1, got2 []string
	s.Subscribe(func(sess *model.Session) { got1 = append(got1, describe(sess)) })
	s.Subscribe(func(sess *model.Session) { got2 = append(got2, describe(sess)) })

	var want []string
	for i := 0; i < 5; i++ {
		s.Set(session(i))
		want = append(want, describe(session(i)))
		if i%2 == 0 {
			s.Set(nil)
			want = append(want, "absent")
		}
	}

	for name, got := range map[string][]string{"first": got1, "second": got2} {
		if len(got) != len(want) {
			t.Fatalf("%s subscriber saw %d values, want %d", name, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s subscriber value %d = %s, want %s", name, i, got[i], want[i])
			}
		}
	}
}

func describe(s *model.Session) string {
	if s == nil {
		return "absent"
	}
	return s.AccessToken
}

func TestConcurrentSetsAreNotCoalesced(t *testing.T) {
	s := New(nil, slog.Default())

	var mu sync.Mutex
	count := 0
	s.Subscribe(func(*model.Session) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set(session(i))
		}(i)
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("subscriber saw %d values, want 50", count)
	}
}

func TestPartialSessionIsAbsent(t *testing.T) {
	s := New(NewMemory(), slog.Default())
	s.Set(session(1))
	s.Set(&model.Session{AccessToken: "only-access"})

	if s.Get() != nil {
		t.Error("partial session should clear the store")
	}
	if s.AccessToken() != "" || s.RefreshToken() != "" {
		t.Error("expected both tokens cleared")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(nil, slog.Default())
	s.Set(session(1))

	got := s.Get()
	got.AccessToken = "mutated"

	if s.AccessToken() != "access-1" {
		t.Errorf("store mutated through returned copy: %q", s.AccessToken())
	}
}

func TestUnsubscribe(t *testing.T) {
	s := New(nil, slog.Default())

	calls := 0
	unsub := s.Subscribe(func(*model.Session) { calls++ })
	s.Set(session(1))
	unsub()
	unsub()
	s.Set(session(2))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPersistenceSurvivesReload(t *testing.T) {
	mem := NewMemory()
	New(mem, slog.Default()).Set(session(7))

	reloaded := New(mem, slog.Default())
	if reloaded.AccessToken() != "access-7" {
		t.Errorf("access token = %q, want %q", reloaded.AccessToken(), "access-7")
	}

	reloaded.Clear()
	if raw, _ := mem.Get(StorageKey); raw != nil {
		t.Error("expected persisted session removed after Clear")
	}
}

func TestPersistenceErrorsAreSwallowed(t *testing.T) {
	s := New(failingPersister{}, slog.Default())
	if s.Get() != nil {
		t.Fatal("expected no session when load fails")
	}

	s.Set(session(3))
	if s.AccessToken() != "access-3" {
		t.Errorf("in-memory value should stay authoritative, got %q", s.AccessToken())
	}
}

func TestCorruptPersistedSessionIgnored(t *testing.T) {
	mem := NewMemory()
	mem.Put(StorageKey, []byte("{not json"))

	if New(mem, slog.Default()).Get() != nil {
		t.Error("expected corrupt session to be ignored")
	}
}

func TestStateStorePersister(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	state := store.NewStateStore(db)
	New(state, slog.Default()).Set(session(9))

	if got := New(state, slog.Default()).RefreshToken(); got != "refresh-9" {
		t.Errorf("refresh token = %q, want %q", got, "refresh-9")
	}
}
