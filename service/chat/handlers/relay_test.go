package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"NexusProject/service/chat"
)

// fakeVerifier accepts tokens of the form "user:<id>:<name>".
type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (chat.Identity, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] != "user" {
		return chat.Identity{}, fmt.Errorf("bad token")
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return chat.Identity{}, fmt.Errorf("bad token id")
	}
	return chat.Identity{UserID: id, DisplayName: parts[2]}, nil
}

type savedMsg struct {
	sender, receiver int64
	content          string
}

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	saved  []savedMsg
	fail   bool
}

func (s *fakeStore) SaveMessage(_ context.Context, senderID, receiverID int64, content string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, time.Time{}, fmt.Errorf("store down")
	}
	s.nextID++
	s.saved = append(s.saved, savedMsg{sender: senderID, receiver: receiverID, content: content})
	return s.nextID, time.Now(), nil
}

func (s *fakeStore) records() []savedMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]savedMsg, len(s.saved))
	copy(out, s.saved)
	return out
}

func newRelay(t *testing.T, store chat.MessageStore) (*httptest.Server, *chat.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := chat.NewServer(fakeVerifier{}, store)
	srv.Disp().Register(NewAuthHandler())
	srv.Disp().Register(NewChatHandler())
	srv.Disp().Register(NewTypingHandler())
	for _, typ := range chat.SignalTypes {
		srv.Disp().Register(NewSignalHandler(typ))
	}

	r := gin.New()
	r.GET("/ws", srv.HandleWS)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, srv
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v map[string]any) {
	t.Helper()
	b, _ := json.Marshal(v)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEnv(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

// expectSilence asserts no envelope arrives within the window. It poisons the
// gorilla read path, so use it only as a test's final read on that conn.
func expectSilence(t *testing.T, ws *websocket.Conn, d time.Duration) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(d))
	_, data, err := ws.ReadMessage()
	if err == nil {
		t.Fatalf("expected silence, got %s", data)
	}
}

func authAs(t *testing.T, ws *websocket.Conn, id int64, name string) []any {
	t.Helper()
	send(t, ws, map[string]any{"type": "auth", "token": fmt.Sprintf("user:%d:%s", id, name)})
	m := readEnv(t, ws)
	if m["type"] != "online-users" {
		t.Fatalf("expected online-users, got %v", m)
	}
	users, _ := m["users"].([]any)
	return users
}

func waitOnline(t *testing.T, srv *chat.Server, id int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.IsOnline(id) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %d never came online", id)
}

func waitOffline(t *testing.T, srv *chat.Server, id int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !srv.IsOnline(id) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %d never went offline", id)
}

func TestAuthSuccess(t *testing.T) {
	ts, srv := newRelay(t, &fakeStore{})
	ws := dial(t, ts)

	users := authAs(t, ws, 7, "alice")
	if len(users) != 1 || users[0].(float64) != 7 {
		t.Fatalf("online list should contain the caller, got %v", users)
	}
	if !srv.IsOnline(7) {
		t.Fatal("registry should hold user 7")
	}
}

func TestAuthInvalidTokenThenRetry(t *testing.T) {
	ts, srv := newRelay(t, &fakeStore{})
	ws := dial(t, ts)

	send(t, ws, map[string]any{"type": "auth", "token": "nonsense"})
	m := readEnv(t, ws)
	if m["type"] != "auth-error" {
		t.Fatalf("expected auth-error, got %v", m)
	}
	if srv.IsOnline(7) {
		t.Fatal("failed auth must not register")
	}

	// the session stays open and re-authenticable
	authAs(t, ws, 7, "alice")
	if !srv.IsOnline(7) {
		t.Fatal("retry should authenticate")
	}
}

func TestUnauthenticatedEnvelopesDropped(t *testing.T) {
	store := &fakeStore{}
	ts, _ := newRelay(t, store)
	ws := dial(t, ts)

	send(t, ws, map[string]any{"type": "chat", "to": 2, "content": "sneaky"})
	send(t, ws, map[string]any{"type": "typing", "to": 2})
	expectSilence(t, ws, 300*time.Millisecond)

	if len(store.records()) != 0 {
		t.Fatal("unauthenticated chat must not persist")
	}
}

func TestMalformedFrameKeepsSessionOpen(t *testing.T) {
	ts, _ := newRelay(t, &fakeStore{})
	ws := dial(t, ts)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// connection survives the garbage
	authAs(t, ws, 7, "alice")
}

func TestChatDeliveryOnline(t *testing.T) {
	store := &fakeStore{}
	ts, srv := newRelay(t, store)

	wsA := dial(t, ts)
	authAs(t, wsA, 1, "alice")
	wsB := dial(t, ts)
	authAs(t, wsB, 2, "bob")
	waitOnline(t, srv, 2)

	// A hears that B came online
	m := readEnv(t, wsA)
	if m["type"] != "user-status" || m["userId"].(float64) != 2 || m["online"] != true {
		t.Fatalf("expected online user-status for 2, got %v", m)
	}

	send(t, wsA, map[string]any{"type": "chat", "to": 2, "content": "hi bob", "from": 999})

	got := readEnv(t, wsB)
	if got["type"] != "chat" || got["content"] != "hi bob" {
		t.Fatalf("recipient payload = %v", got)
	}
	if got["from"].(float64) != 1 {
		t.Fatalf("from must be server-stamped to 1, got %v", got["from"])
	}

	ack := readEnv(t, wsA)
	if ack["type"] != "chat-ack" || ack["to"].(float64) != 2 || ack["content"] != "hi bob" {
		t.Fatalf("ack = %v", ack)
	}
	if ack["id"].(float64) != got["id"].(float64) {
		t.Fatal("ack id must match the delivered id")
	}

	recs := store.records()
	if len(recs) != 1 || recs[0].sender != 1 || recs[0].receiver != 2 || recs[0].content != "hi bob" {
		t.Fatalf("persisted = %+v", recs)
	}
}

func TestChatOfflineStillPersistsAndAcks(t *testing.T) {
	store := &fakeStore{}
	ts, _ := newRelay(t, store)
	ws := dial(t, ts)
	authAs(t, ws, 1, "alice")

	send(t, ws, map[string]any{"type": "chat", "to": 99, "content": "anyone there"})

	ack := readEnv(t, ws)
	if ack["type"] != "chat-ack" {
		t.Fatalf("expected chat-ack, got %v", ack)
	}
	if len(store.records()) != 1 {
		t.Fatal("message must persist regardless of recipient liveness")
	}
}

func TestChatPersistenceFailureSurfaced(t *testing.T) {
	store := &fakeStore{fail: true}
	ts, _ := newRelay(t, store)
	ws := dial(t, ts)
	authAs(t, ws, 1, "alice")

	send(t, ws, map[string]any{"type": "chat", "to": 2, "content": "doomed"})

	m := readEnv(t, ws)
	if m["type"] != "chat-error" {
		t.Fatalf("expected chat-error, got %v", m)
	}
}

func TestTypingRelay(t *testing.T) {
	ts, srv := newRelay(t, &fakeStore{})

	wsA := dial(t, ts)
	authAs(t, wsA, 1, "alice")
	wsB := dial(t, ts)
	authAs(t, wsB, 2, "bob")
	waitOnline(t, srv, 2)

	send(t, wsB, map[string]any{"type": "typing", "to": 1})

	// A has a user-status for B in flight as well; order is not fixed
	seen := map[string]map[string]any{}
	for i := 0; i < 2; i++ {
		m := readEnv(t, wsA)
		seen[m["type"].(string)] = m
	}
	typ, ok := seen["typing"]
	if !ok || typ["from"].(float64) != 2 {
		t.Fatalf("typing notification missing or wrong: %v", seen)
	}
	if _, ok := seen["user-status"]; !ok {
		t.Fatalf("user-status missing: %v", seen)
	}

	// typing to an offline peer: silence, no error back
	send(t, wsB, map[string]any{"type": "typing", "to": 404})
	expectSilence(t, wsB, 300*time.Millisecond)
}

func TestSignalingRelayVerbatim(t *testing.T) {
	ts, srv := newRelay(t, &fakeStore{})

	wsA := dial(t, ts)
	authAs(t, wsA, 1, "alice")
	wsB := dial(t, ts)
	authAs(t, wsB, 2, "bob")
	waitOnline(t, srv, 2)
	_ = readEnv(t, wsA) // drain B's user-status

	send(t, wsA, map[string]any{
		"type": "call-offer", "to": 2, "from": 777,
		"sdp": "v=0 o=- 42", "callType": "video",
	})

	m := readEnv(t, wsB)
	if m["type"] != "call-offer" || m["sdp"] != "v=0 o=- 42" || m["callType"] != "video" {
		t.Fatalf("signal not verbatim: %v", m)
	}
	if m["from"].(float64) != 1 {
		t.Fatalf("spoofed from must be overwritten, got %v", m["from"])
	}

	// offer to an offline peer: dropped, nothing back to the caller
	send(t, wsA, map[string]any{"type": "call-offer", "to": 404, "sdp": "x"})
	expectSilence(t, wsA, 300*time.Millisecond)
}

func TestUnknownFamilyIgnored(t *testing.T) {
	ts, _ := newRelay(t, &fakeStore{})
	ws := dial(t, ts)
	authAs(t, ws, 1, "alice")

	send(t, ws, map[string]any{"type": "group-invite", "to": 2})
	expectSilence(t, ws, 300*time.Millisecond)
}

func TestOfflineBroadcast(t *testing.T) {
	ts, srv := newRelay(t, &fakeStore{})

	wsA := dial(t, ts)
	authAs(t, wsA, 1, "alice")
	wsB := dial(t, ts)
	authAs(t, wsB, 2, "bob")
	wsC := dial(t, ts)
	authAs(t, wsC, 3, "carol")
	waitOnline(t, srv, 3)

	// drain the online notifications A and B saw
	_ = readEnv(t, wsA) // B online
	_ = readEnv(t, wsA) // C online
	_ = readEnv(t, wsB) // C online

	wsC.Close()
	waitOffline(t, srv, 3)

	for _, ws := range []*websocket.Conn{wsA, wsB} {
		m := readEnv(t, ws)
		if m["type"] != "user-status" || m["userId"].(float64) != 3 || m["online"] != false {
			t.Fatalf("expected offline status for 3, got %v", m)
		}
	}
	// exactly once each
	expectSilence(t, wsA, 300*time.Millisecond)
	expectSilence(t, wsB, 300*time.Millisecond)
}

func TestDuplicateAuthSameConnection(t *testing.T) {
	ts, srv := newRelay(t, &fakeStore{})
	ws := dial(t, ts)
	authAs(t, ws, 7, "alice")

	// identity is immutable after bind; re-auth is silently ignored
	send(t, ws, map[string]any{"type": "auth", "token": "user:7:alice"})
	send(t, ws, map[string]any{"type": "auth", "token": "user:8:mallory"})
	expectSilence(t, ws, 300*time.Millisecond)

	if !srv.IsOnline(7) || srv.IsOnline(8) {
		t.Fatal("registry must hold exactly the first identity")
	}
	if len(srv.OnlineUsers()) != 1 {
		t.Fatalf("expected one online user, got %v", srv.OnlineUsers())
	}
}

func TestReconnectReplacesWithoutFalseOffline(t *testing.T) {
	ts, srv := newRelay(t, &fakeStore{})

	observer := dial(t, ts)
	authAs(t, observer, 2, "bob")

	wsOld := dial(t, ts)
	authAs(t, wsOld, 1, "alice")
	waitOnline(t, srv, 1)
	m := readEnv(t, observer)
	if m["type"] != "user-status" || m["online"] != true {
		t.Fatalf("expected online status, got %v", m)
	}

	// second login for the same user evicts the old handle
	wsNew := dial(t, ts)
	authAs(t, wsNew, 1, "alice")

	// old socket is closed by the server
	_ = wsOld.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := wsOld.ReadMessage(); err != nil {
			break
		}
	}
	if !srv.IsOnline(1) {
		t.Fatal("user must stay online through the replacement")
	}

	// the new connection answers for the user
	send(t, observer, map[string]any{"type": "typing", "to": 1})
	m = readEnv(t, wsNew)
	if m["type"] != "typing" || m["from"].(float64) != 2 {
		t.Fatalf("replacement connection should receive relays, got %v", m)
	}

	// the observer saw neither a duplicate online nor a false offline
	expectSilence(t, observer, 500*time.Millisecond)
}
