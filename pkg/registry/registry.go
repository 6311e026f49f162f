// Package registry implements the Session Registry: the in-memory
// table of live SSH sessions plus its idle-eviction loop.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"sshgateway/pkg/gateway"
	"sshgateway/pkg/models"
)

const (
	evictionInterval = time.Minute
	idleThreshold    = 30 * time.Minute
)

// Registry owns every live Session, assigns ids, and runs the
// background idle-eviction ticker. It implements gateway.JumpResolver so
// one registered session can dial another through it.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*gateway.Session

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Registry and starts its idle-eviction loop.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		log:      log,
		sessions: make(map[string]*gateway.Session),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go r.evictionLoop(ctx)
	return r
}

// Connect allocates a session id, registers the session in the
// connecting state, and dials it. The session is registered before the
// dial completes so a failed dial is still observable via Get/Status.
func (r *Registry) Connect(ctx context.Context, cfg models.SessionConfig) (*gateway.Session, error) {
	id := uuid.NewString()
	sess := gateway.NewSession(id, cfg)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	if err := sess.Dial(ctx, r); err != nil {
		r.log.Warn("session dial failed", "sessionId", id, "error", err)
		return sess, err
	}
	r.log.Info("session connected", "sessionId", id, "host", cfg.Host)
	return sess, nil
}

// Get returns the session for id, touching its activity timestamp.
func (r *Registry) Get(id string) (*gateway.Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		sess.Touch()
	}
	return sess, ok
}

// Status returns the session's lifecycle status, or false if unknown.
func (r *Registry) Status(id string) (models.SessionStatus, string, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return "", "", false
	}
	status, errText := sess.Status()
	return status, errText, true
}

// Info projects a session into its externally visible SessionInfo.
func (r *Registry) Info(id string) (models.SessionInfo, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return models.SessionInfo{}, false
	}
	status, errText := sess.Status()
	cfg := sess.Config()
	return models.SessionInfo{
		ID:             sess.ID(),
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Status:         status,
		Error:          errText,
		CreatedAt:      sess.CreatedAt(),
		LastActivityAt: sess.LastActivity(),
	}, true
}

// ActiveSessions lists every registered session's info, most recently
// created first is not guaranteed; callers that need ordering sort it.
func (r *Registry) ActiveSessions() []models.SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SessionInfo, 0, len(r.sessions))
	for _, sess := range r.sessions {
		status, errText := sess.Status()
		cfg := sess.Config()
		out = append(out, models.SessionInfo{
			ID:             sess.ID(),
			Host:           cfg.Host,
			Port:           cfg.Port,
			Username:       cfg.Username,
			Status:         status,
			Error:          errText,
			CreatedAt:      sess.CreatedAt(),
			LastActivityAt: sess.LastActivity(),
		})
	}
	return out
}

// Disconnect tears down and removes a session. Idempotent: disconnecting
// twice, or disconnecting a session the eviction loop has already torn
// down, both just return false the second time.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	sess.Disconnect()
	r.log.Info("session disconnected", "sessionId", id)
	return true
}

// Resize forwards a terminal resize to the session's shell, if any.
func (r *Registry) Resize(id string, cols, rows int) bool {
	sess, ok := r.Get(id)
	if !ok {
		return false
	}
	sess.Resize(cols, rows)
	return true
}

// SendInput forwards input bytes to the session's shell.
func (r *Registry) SendInput(id string, data []byte) bool {
	sess, ok := r.Get(id)
	if !ok {
		return false
	}
	return sess.SendInput(data)
}

// CreateShell creates (or returns the existing) shell for a session.
func (r *Registry) CreateShell(id string, cols, rows int) (*gateway.ShellIO, bool, error) {
	sess, ok := r.Get(id)
	if !ok {
		return nil, false, gateway.ErrTransportGone
	}
	return sess.CreateShell(cols, rows)
}

// EnsureSFTP lazily opens the SFTP subsystem for a session.
func (r *Registry) EnsureSFTP(id string) (*gateway.Session, error) {
	sess, ok := r.Get(id)
	if !ok {
		return nil, gateway.ErrTransportGone
	}
	if _, err := sess.EnsureSFTP(); err != nil {
		return nil, err
	}
	return sess, nil
}

// SSHClientFor implements gateway.JumpResolver, letting one registered
// session act as another's jump host.
func (r *Registry) SSHClientFor(sessionID string) (*ssh.Client, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return sess.SSHClient()
}

func (r *Registry) evictionLoop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	now := time.Now()
	var stale []string
	r.mu.RLock()
	for id, sess := range r.sessions {
		if now.Sub(sess.LastActivity()) > idleThreshold {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.log.Info("evicting idle session", "sessionId", id)
		r.Disconnect(id)
	}
}

// Shutdown cancels the eviction loop and disconnects every live session.
func (r *Registry) Shutdown() {
	r.cancel()
	<-r.done

	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Disconnect(id)
	}
}
