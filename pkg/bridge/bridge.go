// Package bridge implements the Shell Bridge: the WebSocket-to-SSH
// relay that binds browser sockets to session shells, buffers output
// while no socket is bound, and retries shell creation with backoff.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sshgateway/pkg/gateway"
	"sshgateway/pkg/message"
)

const (
	defaultCols = 80
	defaultRows = 24

	shellCreateAttempts = 5
	shellRetryBase      = 500 * time.Millisecond

	disconnectGrace = 5 * time.Second
	livenessPeriod  = 30 * time.Second
	outputSettle    = 50 * time.Millisecond

	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
)

// SessionOps is the slice of the Session Registry the bridge needs.
type SessionOps interface {
	Get(id string) (*gateway.Session, bool)
	CreateShell(id string, cols, rows int) (*gateway.ShellIO, bool, error)
	SendInput(id string, data []byte) bool
	Resize(id string, cols, rows int) bool
	Disconnect(id string) bool
}

// wsConn wraps a gorilla connection with the bookkeeping the bridge needs:
// a write mutex (gorilla connections are not safe for concurrent writers)
// and a liveness flag toggled by the process-wide ping ticker.
type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	stateMu      sync.Mutex
	closed       bool
	awaitingPong bool
}

func (c *wsConn) isOpen() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return !c.closed
}

func (c *wsConn) markClosed() {
	c.stateMu.Lock()
	already := c.closed
	c.closed = true
	c.stateMu.Unlock()
	if !already {
		_ = c.conn.Close()
	}
}

func (c *wsConn) writeJSON(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) writePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// sessionState is the bridge's per-session bookkeeping: the currently
// bound socket (nullable), the early-output buffer, and the pending grace
// teardown (if any).
type sessionState struct {
	mu sync.Mutex

	conn *wsConn

	shellStarted bool
	cols, rows   int

	buffer [][]byte

	graceCancel context.CancelFunc
}

// Bridge relays between browser WebSockets and session shells.
type Bridge struct {
	ops SessionOps
	log *slog.Logger

	mu     sync.Mutex
	states map[string]*sessionState
	conns  map[*wsConn]struct{}
}

// New builds a Bridge over the given session operations and starts its
// process-wide liveness ticker.
func New(ops SessionOps, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	b := &Bridge{
		ops:    ops,
		log:    log,
		states: make(map[string]*sessionState),
		conns:  make(map[*wsConn]struct{}),
	}
	go b.livenessLoop()
	return b
}

func (b *Bridge) stateFor(sessionID string) *sessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[sessionID]
	if !ok {
		st = &sessionState{cols: defaultCols, rows: defaultRows}
		b.states[sessionID] = st
	}
	return st
}

// Serve takes ownership of an accepted WebSocket connection and runs its
// read loop until the socket closes. It blocks until the connection ends.
func (b *Bridge) Serve(conn *websocket.Conn) {
	wsc := &wsConn{conn: conn}

	b.mu.Lock()
	b.conns[wsc] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, wsc)
		b.mu.Unlock()
		wsc.markClosed()
	}()

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		wsc.stateMu.Lock()
		wsc.awaitingPong = false
		wsc.stateMu.Unlock()
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	boundSessions := make(map[string]struct{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		msg, err := message.ParseClient(raw)
		if err != nil {
			_ = wsc.writeJSON(message.Error("", "malformed message"))
			continue
		}
		boundSessions[msg.SessionID] = struct{}{}
		b.handleClientMessage(wsc, msg)
	}

	for sessionID := range boundSessions {
		b.onConnClosed(sessionID, wsc)
	}
}

func (b *Bridge) handleClientMessage(wsc *wsConn, msg *message.ClientMessage) {
	switch msg.Type {
	case message.TypeInput:
		b.attach(msg.SessionID, wsc)
		b.ensureShell(msg.SessionID)
		if !b.ops.SendInput(msg.SessionID, []byte(msg.Data)) {
			_ = wsc.writeJSON(message.Error(msg.SessionID, "no active shell"))
		}
	case message.TypeResize:
		b.attach(msg.SessionID, wsc)
		st := b.stateFor(msg.SessionID)
		st.mu.Lock()
		st.cols, st.rows = msg.Cols, msg.Rows
		st.mu.Unlock()
		b.ensureShell(msg.SessionID)
		b.ops.Resize(msg.SessionID, msg.Cols, msg.Rows)
	case message.TypePing:
		b.attach(msg.SessionID, wsc)
		_ = wsc.writeJSON(message.Pong(msg.SessionID))
	default:
		_ = wsc.writeJSON(message.Error(msg.SessionID, "unknown message type"))
	}
}

// attach binds wsc as the current sink for sessionID, superseding any
// earlier socket, and cancels a pending disconnect grace if one was
// scheduled (the "page refresh" case).
func (b *Bridge) attach(sessionID string, wsc *wsConn) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.conn = wsc
	if st.graceCancel != nil {
		st.graceCancel()
		st.graceCancel = nil
	}
}

// ensureShell starts shell creation for sessionID if none is underway or
// already live. It returns immediately; creation (and its retry policy)
// runs on its own goroutine, since a slow SSH handshake must not block
// the WebSocket read loop.
func (b *Bridge) ensureShell(sessionID string) {
	if _, ok := b.ops.Get(sessionID); !ok {
		st := b.stateFor(sessionID)
		st.mu.Lock()
		conn := st.conn
		st.mu.Unlock()
		if conn != nil {
			_ = conn.writeJSON(message.Error(sessionID, "session not found"))
		}
		return
	}

	st := b.stateFor(sessionID)
	st.mu.Lock()
	if st.shellStarted {
		st.mu.Unlock()
		return
	}
	st.shellStarted = true
	cols, rows := st.cols, st.rows
	st.mu.Unlock()

	go b.createShellWithRetry(sessionID, st, cols, rows)
}

func (b *Bridge) createShellWithRetry(sessionID string, st *sessionState, cols, rows int) {
	var (
		shellIO *gateway.ShellIO
		isNew   bool
		lastErr error
	)
	for attempt := 1; attempt <= shellCreateAttempts; attempt++ {
		var err error
		shellIO, isNew, err = b.ops.CreateShell(sessionID, cols, rows)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		b.log.Warn("shell creation attempt failed", "sessionId", sessionID, "attempt", attempt, "error", err)
		time.Sleep(shellRetryBase * time.Duration(attempt))
	}

	if lastErr != nil {
		st.mu.Lock()
		st.shellStarted = false
		conn := st.conn
		st.mu.Unlock()
		if conn != nil {
			_ = conn.writeJSON(message.Error(sessionID, "failed to start shell"))
		}
		return
	}

	if isNew {
		go b.pumpOutput(sessionID, shellIO)
	}

	time.Sleep(outputSettle)
	b.drainBuffer(sessionID)
}

func (b *Bridge) pumpOutput(sessionID string, shellIO *gateway.ShellIO) {
	buf := make([]byte, 4096)
	for {
		n, err := shellIO.Stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.emitOutput(sessionID, chunk)
		}
		if err != nil {
			break
		}
	}

	if sess, ok := b.ops.Get(sessionID); ok {
		sess.MarkShellClosed()
	}
	b.emitRaw(sessionID, message.Disconnect(sessionID))

	st := b.stateFor(sessionID)
	st.mu.Lock()
	st.shellStarted = false
	st.mu.Unlock()
}

func (b *Bridge) emitOutput(sessionID string, data []byte) {
	b.emitRaw(sessionID, message.Output(sessionID, data))
}

// emitRaw sends payload to the currently bound socket, first draining any
// buffered backlog in arrival order, or appends it to the buffer when no
// socket is bound (or the bound socket is not open).
func (b *Bridge) emitRaw(sessionID string, payload []byte) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	conn := st.conn
	if conn == nil || !conn.isOpen() {
		st.buffer = append(st.buffer, payload)
		st.mu.Unlock()
		return
	}
	pending := st.buffer
	st.buffer = nil
	st.mu.Unlock()

	for _, p := range pending {
		if err := conn.writeJSON(p); err != nil {
			b.rebuffer(sessionID, p)
			return
		}
	}
	if err := conn.writeJSON(payload); err != nil {
		b.rebuffer(sessionID, payload)
	}
}

func (b *Bridge) rebuffer(sessionID string, payload []byte) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	st.buffer = append(st.buffer, payload)
	st.mu.Unlock()
}

// drainBuffer flushes any backlog accumulated before a socket was bound,
// used once after shell creation settles.
func (b *Bridge) drainBuffer(sessionID string) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	conn := st.conn
	pending := st.buffer
	st.buffer = nil
	st.mu.Unlock()

	if conn == nil || !conn.isOpen() || len(pending) == 0 {
		if len(pending) > 0 {
			b.rebufferAll(sessionID, pending)
		}
		return
	}
	for _, p := range pending {
		if err := conn.writeJSON(p); err != nil {
			b.rebuffer(sessionID, p)
			return
		}
	}
}

func (b *Bridge) rebufferAll(sessionID string, payloads [][]byte) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	st.buffer = append(payloads, st.buffer...)
	st.mu.Unlock()
}

// onConnClosed runs when a WebSocket's read loop ends. If wsc is still
// the bound socket for sessionID, it schedules the disconnect grace
// window; if another socket has since superseded it, this is a no-op.
func (b *Bridge) onConnClosed(sessionID string, wsc *wsConn) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	if st.conn != wsc {
		st.mu.Unlock()
		return
	}
	st.conn = nil
	ctx, cancel := context.WithCancel(context.Background())
	st.graceCancel = cancel
	st.mu.Unlock()

	go b.scheduleDisconnect(sessionID, ctx)
}

func (b *Bridge) scheduleDisconnect(sessionID string, ctx context.Context) {
	timer := time.NewTimer(disconnectGrace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		b.log.Info("disconnect grace expired", "sessionId", sessionID)
		b.ops.Disconnect(sessionID)
		b.mu.Lock()
		delete(b.states, sessionID)
		b.mu.Unlock()
	}
}

// livenessLoop pings every registered socket every 30s; a socket that
// never answered the previous ping is terminated, which unblocks its
// read loop and triggers the normal disconnect-grace path.
func (b *Bridge) livenessLoop() {
	ticker := time.NewTicker(livenessPeriod)
	defer ticker.Stop()
	for range ticker.C {
		b.mu.Lock()
		conns := make([]*wsConn, 0, len(b.conns))
		for c := range b.conns {
			conns = append(conns, c)
		}
		b.mu.Unlock()

		for _, c := range conns {
			c.stateMu.Lock()
			stale := c.awaitingPong
			c.awaitingPong = true
			c.stateMu.Unlock()

			if stale {
				c.markClosed()
				continue
			}
			if err := c.writePing(); err != nil {
				c.markClosed()
			}
		}
	}
}
