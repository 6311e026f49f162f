package bridge

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sshgateway/pkg/gateway"
	"sshgateway/pkg/message"
	"sshgateway/pkg/models"
)

// fakeOps is a minimal, in-memory stand-in for the Session Registry's
// slice the bridge depends on.
type fakeOps struct {
	mu sync.Mutex

	known map[string]*gateway.Session

	createCalls  int
	createErr    error
	shellCreated bool
	shellIO      *gateway.ShellIO

	inputs       [][]byte
	resizes      int
	disconnected []string
}

func newFakeOps(ids ...string) *fakeOps {
	known := make(map[string]*gateway.Session)
	for _, id := range ids {
		known[id] = gateway.NewSession(id, models.SessionConfig{Host: "example"})
	}
	return &fakeOps{known: known}
}

func (f *fakeOps) Get(id string) (*gateway.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.known[id]
	return s, ok
}

func (f *fakeOps) CreateShell(id string, cols, rows int) (*gateway.ShellIO, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	isNew := !f.shellCreated
	f.shellCreated = true
	return f.shellIO, isNew, nil
}

func (f *fakeOps) SendInput(id string, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.known[id]; !ok {
		return false
	}
	f.inputs = append(f.inputs, data)
	return true
}

func (f *fakeOps) Resize(id string, cols, rows int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.known[id]; !ok {
		return false
	}
	f.resizes++
	return true
}

func (f *fakeOps) Disconnect(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, id)
	return true
}

func (f *fakeOps) createCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func newTestServer(t *testing.T, b *Bridge) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.Serve(conn)
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var out map[string]any
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return out
}

func TestBridge_UnknownSession_RepliesError(t *testing.T) {
	ops := newFakeOps()
	b := New(ops, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, url := newTestServer(t, b)
	conn := dial(t, url)

	if err := conn.WriteJSON(map[string]any{"type": "input", "sessionId": "missing", "data": "ls\n"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readMessage(t, conn, 2*time.Second)
	if msg["type"] != message.TypeErr {
		t.Fatalf("type = %v, want error", msg["type"])
	}
}

func TestBridge_UnknownMessageType_RepliesError(t *testing.T) {
	ops := newFakeOps("s1")
	b := New(ops, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, url := newTestServer(t, b)
	conn := dial(t, url)

	if err := conn.WriteJSON(map[string]any{"type": "bogus", "sessionId": "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readMessage(t, conn, 2*time.Second)
	if msg["type"] != message.TypeErr {
		t.Fatalf("type = %v, want error", msg["type"])
	}
}

func TestBridge_ConcurrentMessages_CreateExactlyOneShell(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { _ = r.Close(); _ = w.Close() })

	ops := newFakeOps("s1")
	ops.shellIO = &gateway.ShellIO{Stdin: io.Discard, Stdout: r}
	b := New(ops, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, url := newTestServer(t, b)
	conn := dial(t, url)

	for i := 0; i < 5; i++ {
		_ = conn.WriteJSON(map[string]any{"type": "resize", "sessionId": "s1", "cols": 80, "rows": 24})
	}
	_ = conn.WriteJSON(map[string]any{"type": "input", "sessionId": "s1", "data": "x"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ops.createCallCount() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := ops.createCallCount(); got != 1 {
		t.Fatalf("createCalls = %d, want 1", got)
	}
}

func TestBridge_Disconnect_GraceWindowCancelsOnReattach(t *testing.T) {
	ops := newFakeOps("s1")
	b := New(ops, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv, url := newTestServer(t, b)
	_ = srv

	first := dial(t, url)
	if err := first.WriteJSON(map[string]any{"type": "ping", "sessionId": "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readMessage(t, first, 2*time.Second)
	_ = first.Close()

	// Give the read loop time to notice the close and schedule the grace
	// teardown, then reattach before the grace window (5s) expires.
	time.Sleep(50 * time.Millisecond)

	second := dial(t, url)
	if err := second.WriteJSON(map[string]any{"type": "ping", "sessionId": "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readMessage(t, second, 2*time.Second)

	ops.mu.Lock()
	disconnectedOnReattach := len(ops.disconnected)
	ops.mu.Unlock()
	if disconnectedOnReattach != 0 {
		t.Fatalf("expected reattach to cancel the pending disconnect, got %d disconnects", disconnectedOnReattach)
	}
}
