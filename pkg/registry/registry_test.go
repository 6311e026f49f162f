package registry

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"sshgateway/pkg/gateway"
	"sshgateway/pkg/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(r.Shutdown)
	return r
}

// insert registers a session directly, bypassing Dial, so registry
// bookkeeping can be exercised without a live SSH transport.
func (r *Registry) insert(sess *gateway.Session) {
	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()
}

func TestGet_UnknownID_ReturnsFalse(t *testing.T) {
	r := newTestRegistry(t)
	if _, ok := r.Get("missing"); ok {
		t.Fatalf("expected Get of unknown id to return false")
	}
}

func TestGet_TouchesActivity(t *testing.T) {
	r := newTestRegistry(t)
	sess := gateway.NewSession("s1", models.SessionConfig{Host: "example"})
	r.insert(sess)

	before := sess.LastActivity()
	time.Sleep(2 * time.Millisecond)

	got, ok := r.Get("s1")
	if !ok {
		t.Fatalf("expected session to be found")
	}
	if !got.LastActivity().After(before) {
		t.Fatalf("expected Get to advance LastActivity")
	}
}

func TestStatus_ReflectsSession(t *testing.T) {
	r := newTestRegistry(t)
	sess := gateway.NewSession("s1", models.SessionConfig{Host: "example"})
	r.insert(sess)

	status, errText, ok := r.Status("s1")
	if !ok {
		t.Fatalf("expected status lookup to succeed")
	}
	if status != models.StatusConnecting {
		t.Fatalf("status = %q, want %q", status, models.StatusConnecting)
	}
	if errText != "" {
		t.Fatalf("errText = %q, want empty", errText)
	}

	if _, _, ok := r.Status("missing"); ok {
		t.Fatalf("expected status lookup of unknown id to fail")
	}
}

func TestInfo_ProjectsConfig(t *testing.T) {
	r := newTestRegistry(t)
	sess := gateway.NewSession("s1", models.SessionConfig{Host: "10.0.0.1", Port: 22, Username: "root"})
	r.insert(sess)

	info, ok := r.Info("s1")
	if !ok {
		t.Fatalf("expected info lookup to succeed")
	}
	if info.Host != "10.0.0.1" || info.Port != 22 || info.Username != "root" {
		t.Fatalf("info = %+v, unexpected projection", info)
	}
}

func TestActiveSessions_ListsEverything(t *testing.T) {
	r := newTestRegistry(t)
	r.insert(gateway.NewSession("s1", models.SessionConfig{Host: "a"}))
	r.insert(gateway.NewSession("s2", models.SessionConfig{Host: "b"}))

	sessions := r.ActiveSessions()
	if len(sessions) != 2 {
		t.Fatalf("len(ActiveSessions()) = %d, want 2", len(sessions))
	}
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	r.insert(gateway.NewSession("s1", models.SessionConfig{Host: "a"}))

	if !r.Disconnect("s1") {
		t.Fatalf("expected first disconnect to report true")
	}
	if r.Disconnect("s1") {
		t.Fatalf("expected second disconnect to report false")
	}
	if _, ok := r.Get("s1"); ok {
		t.Fatalf("expected session to be removed after disconnect")
	}
}

func TestResizeAndSendInput_UnknownSession_ReturnFalse(t *testing.T) {
	r := newTestRegistry(t)
	if r.Resize("missing", 80, 24) {
		t.Fatalf("expected Resize on unknown session to return false")
	}
	if r.SendInput("missing", []byte("x")) {
		t.Fatalf("expected SendInput on unknown session to return false")
	}
}

func TestCreateShell_UnknownSession_ReturnsTransportGone(t *testing.T) {
	r := newTestRegistry(t)
	_, _, err := r.CreateShell("missing", 80, 24)
	if err != gateway.ErrTransportGone {
		t.Fatalf("err = %v, want ErrTransportGone", err)
	}
}

func TestEnsureSFTP_UnknownSession_ReturnsTransportGone(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.EnsureSFTP("missing"); err != gateway.ErrTransportGone {
		t.Fatalf("err = %v, want ErrTransportGone", err)
	}
}

func TestSSHClientFor_UnknownSession_ReturnsFalse(t *testing.T) {
	r := newTestRegistry(t)
	if _, ok := r.SSHClientFor("missing"); ok {
		t.Fatalf("expected SSHClientFor of unknown id to return false")
	}
}

func TestEvictIdle_KeepsSessionsUnderThreshold(t *testing.T) {
	r := newTestRegistry(t)

	fresh := gateway.NewSession("fresh", models.SessionConfig{Host: "a"})
	stale := gateway.NewSession("stale", models.SessionConfig{Host: "b"})
	r.insert(fresh)
	r.insert(stale)

	// Neither session is old enough to trip the 30-minute threshold, so
	// this only exercises the "nothing stale yet" branch; idle-threshold
	// expiry itself needs fake time to test directly.
	r.evictIdle()

	if _, ok := r.Get("fresh"); !ok {
		t.Fatalf("expected fresh session to survive eviction")
	}
	if _, ok := r.Get("stale"); !ok {
		t.Fatalf("expected recently created session to survive eviction")
	}
}

func TestShutdown_DisconnectsAllSessions(t *testing.T) {
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.insert(gateway.NewSession("s1", models.SessionConfig{Host: "a"}))
	r.insert(gateway.NewSession("s2", models.SessionConfig{Host: "b"}))

	r.Shutdown()

	if len(r.ActiveSessions()) != 0 {
		t.Fatalf("expected no sessions to remain after shutdown")
	}
}
