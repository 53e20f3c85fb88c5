package webhookapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/craftsight/syncengine/internal/newsletter"
	"github.com/craftsight/syncengine/internal/store"
)

type fakeSubStore struct {
	subscribers  map[string]*store.Subscriber
	unsubscribed []string
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{subscribers: map[string]*store.Subscriber{}}
}

func (f *fakeSubStore) UpsertSubscriber(_ context.Context, sub *store.Subscriber) (string, error) {
	f.subscribers[sub.Email] = sub
	return "sub-1", nil
}

func (f *fakeSubStore) SetSubstackStatus(context.Context, string, string, string, string) error {
	return nil
}

func (f *fakeSubStore) MarkUnsubscribed(_ context.Context, _, email string) error {
	f.unsubscribed = append(f.unsubscribed, email)
	return nil
}

func (f *fakeSubStore) PendingSubscribers(context.Context, string, int) ([]store.Subscriber, error) {
	return nil, nil
}

func (f *fakeSubStore) AllSubscribers(context.Context, string) ([]store.Subscriber, error) {
	return nil, nil
}

func (f *fakeSubStore) InsertNewsletterLog(context.Context, string, string, string, string, string, string, map[string]any) error {
	return nil
}

type fakeForwarder struct{}

func (fakeForwarder) Subscribe(context.Context, string) newsletter.ForwardResult {
	return newsletter.ForwardResult{Success: true, StatusCode: 200}
}

type fakeUpstream struct{}

func (fakeUpstream) ActiveSubscribers(context.Context) ([]newsletter.UpstreamSubscriber, error) {
	return nil, nil
}

const testSecret = "webhook-secret"

func newTestServer() (*Server, *fakeSubStore) {
	st := newFakeSubStore()
	beehiiv := newsletter.NewBeehiiv("key", "pub", testSecret)
	syncer := newsletter.NewSyncer(st, fakeForwarder{}, fakeUpstream{}, "owner")
	return &Server{Syncer: syncer, Verifier: beehiiv}, st
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, h http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/beehiiv-subscriber-webhook", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("X-Beehiiv-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["timestamp"] == "" {
		t.Error("missing timestamp")
	}
}

func TestListWebhooks(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/webhooks", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("/beehiiv-subscriber-webhook")) {
		t.Error("webhook listing missing the beehiiv endpoint")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv, st := newTestServer()
	payload := []byte(`{"event":"subscriber.created","data":{"email":"a@example.com"}}`)

	rec := postWebhook(t, srv.Routes(), payload, "deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(st.subscribers) != 0 {
		t.Error("unverified payload was processed")
	}
}

func TestWebhookSubscriberCreated(t *testing.T) {
	srv, st := newTestServer()
	payload := []byte(`{"event":"subscriber.created","data":{"id":"bh-1","email":"Reader@Example.com"}}`)

	rec := postWebhook(t, srv.Routes(), payload, sign(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["status"] != "processed" || body["substack_status"] != "confirmation_sent" {
		t.Errorf("response = %v", body)
	}
	if _, ok := st.subscribers["reader@example.com"]; !ok {
		t.Error("subscriber not stored")
	}
}

func TestWebhookUnsubscribed(t *testing.T) {
	srv, st := newTestServer()
	payload := []byte(`{"event":"subscriber.unsubscribed","data":{"email":"gone@example.com"}}`)

	rec := postWebhook(t, srv.Routes(), payload, sign(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(st.unsubscribed) != 1 || st.unsubscribed[0] != "gone@example.com" {
		t.Errorf("unsubscribed = %v", st.unsubscribed)
	}
}

func TestWebhookMissingEmail(t *testing.T) {
	srv, _ := newTestServer()
	payload := []byte(`{"event":"subscriber.created","data":{"id":"bh-1"}}`)

	rec := postWebhook(t, srv.Routes(), payload, sign(payload))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	srv, _ := newTestServer()
	payload := []byte(`{not json`)

	rec := postWebhook(t, srv.Routes(), payload, sign(payload))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	srv, _ := newTestServer()
	payload := []byte(`{"event":"post.published","data":{}}`)

	rec := postWebhook(t, srv.Routes(), payload, sign(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "ignored" {
		t.Errorf("response = %v", body)
	}
}
