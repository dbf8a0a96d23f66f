package database

import (
	"path/filepath"
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"client_state", "push_subscriptions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenIsIdempotentOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO client_state (key, value) VALUES ('k', 'v')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db.Close()

	var value string
	if err := db.QueryRow(`SELECT value FROM client_state WHERE key = 'k'`).Scan(&value); err != nil {
		t.Fatalf("query after reopen: %v", err)
	}
	if value != "v" {
		t.Errorf("value = %q, want %q", value, "v")
	}
}
