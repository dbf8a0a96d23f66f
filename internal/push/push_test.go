package push

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dukerupert/bidwatch/internal/database"
	"github.com/dukerupert/bidwatch/internal/notify"
	"github.com/dukerupert/bidwatch/internal/store"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

// clientKeys returns the p256dh and auth values a browser would register.
func clientKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(auth)
}

func setupNotifier(t *testing.T) (*Notifier, *store.PushStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("vapid keys: %v", err)
	}
	subs := store.NewPushStore(db)
	svc := NewService(Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv}, nil)
	return NewNotifier(svc, subs, nil), subs
}

func TestNotifier_SendsNativeOnly(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		authHeader = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n, subs := setupNotifier(t)
	p256dh, auth := clientKeys(t)
	if _, err := subs.CreateSubscription(srv.URL+"/push/abc", p256dh, auth, "laptop"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	n.Show(notify.Notice{Level: notify.LevelInfo, Message: "toast only"})
	n.Show(notify.Notice{Level: notify.LevelWarning, Title: "You have been outbid!", Message: "New bid: 1,200,000 VND in Vase", Native: true})
	n.Wait()

	if got := hits.Load(); got != 1 {
		t.Fatalf("push deliveries = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if authHeader == "" {
		t.Error("push request carried no VAPID authorization")
	}
}

func TestNotifier_DropsExpiredSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	n, subs := setupNotifier(t)
	p256dh, auth := clientKeys(t)
	if _, err := subs.CreateSubscription(srv.URL+"/push/gone", p256dh, auth, "phone"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	n.Show(notify.Notice{Title: "Auction Won!", Message: "You won Vase", Native: true})
	n.Wait()

	list, err := subs.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("subscriptions = %d, want 0 after 410", len(list))
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config reports enabled")
	}
	if !(Config{VAPIDPublicKey: "a", VAPIDPrivateKey: "b"}).Enabled() {
		t.Error("configured keys report disabled")
	}
}

var _ Subscriptions = (*store.PushStore)(nil)
