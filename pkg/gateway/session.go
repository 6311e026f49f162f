// Package gateway implements the SSH Session component: one
// outbound SSH connection plus its optional shell and SFTP children.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"sshgateway/pkg/models"
)

// keepaliveInterval and keepaliveMaxMisses bound the health check used to
// decide a transport is dead; connectDeadline bounds the initial dial.
const (
	keepaliveInterval  = 10 * time.Second
	keepaliveMaxMisses = 3
	connectDeadline    = 10 * time.Second
)

// ErrTransportGone is returned by operations that need a live SSH
// transport (shell creation, SFTP init) once the session has been torn
// down or never finished connecting.
var ErrTransportGone = errors.New("ssh transport not connected")

// JumpResolver looks up another session's live *ssh.Client, used to dial
// through a jump host. The Session Registry implements this.
type JumpResolver interface {
	SSHClientFor(sessionID string) (*ssh.Client, bool)
}

// ShellIO bundles the pieces the Shell Bridge needs from a freshly
// created interactive shell: a writer for client input and a single
// combined reader for the shell's stdout+stderr.
type ShellIO struct {
	Stdin  io.Writer
	Stdout io.Reader
}

// Session owns one outbound SSH connection and, lazily, its shell and
// SFTP children. Callers reach it only through the Session Registry;
// every exported method here is safe for concurrent use.
type Session struct {
	id     string
	config models.SessionConfig

	mu        sync.Mutex
	client    *ssh.Client
	sftpCli   *sftp.Client
	status    models.SessionStatus
	errText   string
	createdAt time.Time
	lastUsed  time.Time

	// shellMu serializes shell creation: it is held for the entire
	// duration of an attempt, so a concurrent caller blocks until the
	// in-flight attempt finishes and then observes its result directly
	// (the single-shell invariant).
	shellMu sync.Mutex
	shell   *shellHandle

	keepaliveCancel context.CancelFunc
}

type shellHandle struct {
	session   *ssh.Session
	stdin     *syncWriter
	combined  io.Reader
	closeOnce sync.Once
	closed    chan struct{}
}

// syncWriter serializes concurrent writers onto one underlying writer
// (the bridge's input-forwarding goroutine is the only expected writer,
// but this keeps sendInput safe regardless).
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// NewSession allocates a Session in the "connecting" state. Dial must be
// called to actually establish the transport.
func NewSession(id string, cfg models.SessionConfig) *Session {
	return &Session{
		id:        id,
		config:    cfg,
		status:    models.StatusConnecting,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}
}

// ID returns the session's opaque id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was allocated.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Config returns the session's dial configuration. After Dial returns,
// its secret fields are empty.
func (s *Session) Config() models.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Dial establishes the outbound SSH transport with a hard deadline. On
// success the session transitions to connected and a background
// keepalive loop starts; on failure it transitions to error.
func (s *Session) Dial(ctx context.Context, resolver JumpResolver) error {
	ctx, cancel := context.WithTimeout(ctx, connectDeadline)
	defer cancel()

	client, err := dialSSH(ctx, s.config, resolver)

	s.mu.Lock()
	defer s.mu.Unlock()
	// The handshake is over either way; drop the secrets so the Session
	// never retains them.
	s.config.Password = ""
	s.config.PrivateKey = ""
	s.config.Passphrase = ""
	s.config.ProxyPassword = ""
	if err != nil {
		s.status = models.StatusError
		s.errText = err.Error()
		return err
	}
	s.client = client
	s.status = models.StatusConnected

	kctx, kcancel := context.WithCancel(context.Background())
	s.keepaliveCancel = kcancel
	go s.runKeepalive(kctx, client)
	return nil
}

func dialSSH(ctx context.Context, cfg models.SessionConfig, resolver JumpResolver) (*ssh.Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host not specified")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("ssh username not specified")
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectDeadline,
	}

	switch cfg.AuthType {
	case models.AuthKey:
		signer, err := resolvePrivateKey(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "parse private key")
		}
		if signer != nil {
			clientConfig.Auth = append(clientConfig.Auth, ssh.PublicKeys(signer))
		}
	default:
		if cfg.Password != "" {
			clientConfig.Auth = append(clientConfig.Auth, ssh.Password(cfg.Password))
		}
	}
	if len(clientConfig.Auth) == 0 {
		clientConfig.Auth = append(clientConfig.Auth, ssh.Password(""))
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

	switch cfg.ConnectionMode {
	case "jump":
		return dialViaJump(ctx, cfg, resolver, addr, clientConfig)
	case "proxy":
		return dialViaProxy(ctx, cfg, addr, clientConfig)
	default:
		dialer := &net.Dialer{Timeout: connectDeadline}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, errors.Wrap(err, "dial ssh tcp")
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
		if err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "ssh handshake")
		}
		return ssh.NewClient(c, chans, reqs), nil
	}
}

func dialViaJump(ctx context.Context, cfg models.SessionConfig, resolver JumpResolver, targetAddr string, targetConfig *ssh.ClientConfig) (*ssh.Client, error) {
	if resolver == nil {
		return nil, fmt.Errorf("jump connection mode requires a session resolver")
	}
	jumpClient, ok := resolver.SSHClientFor(cfg.JumpSessionID)
	if !ok {
		return nil, fmt.Errorf("jump session %s is not connected", cfg.JumpSessionID)
	}
	conn, err := jumpClient.DialContext(ctx, "tcp", targetAddr)
	if err != nil {
		return nil, errors.Wrap(err, "dial target through jump host")
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, targetAddr, targetConfig)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ssh handshake through jump host")
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func parsePrivateKey(keyData string, passphrase string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey([]byte(keyData))
	if err == nil {
		return signer, nil
	}
	if passphrase == "" {
		return nil, err
	}
	return ssh.ParsePrivateKeyWithPassphrase([]byte(keyData), []byte(passphrase))
}

// resolvePrivateKey prefers inline key material and falls back to reading
// PrivateKeyPath off disk. It returns a nil signer, nil error when neither
// is set, so key auth with no material is simply absent rather than an
// error.
func resolvePrivateKey(cfg models.SessionConfig) (ssh.Signer, error) {
	if cfg.PrivateKey != "" {
		return parsePrivateKey(cfg.PrivateKey, cfg.Passphrase)
	}
	if cfg.PrivateKeyPath != "" {
		return loadPrivateKeyFile(cfg.PrivateKeyPath, cfg.Passphrase)
	}
	return nil, nil
}

func (s *Session) runKeepalive(ctx context.Context, client *ssh.Client) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				misses++
				if misses >= keepaliveMaxMisses {
					s.mu.Lock()
					s.status = models.StatusError
					s.errText = "keepalive failed"
					s.mu.Unlock()
					return
				}
				continue
			}
			misses = 0
		}
	}
}

// Status returns the session's current lifecycle status and any error
// text recorded against it.
func (s *Session) Status() (models.SessionStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.errText
}

// Touch advances lastActivityAt to now. Registry.Get calls this on every
// lookup, and SendInput and Resize call it after each shell write.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SSHClientFor implements gateway.JumpResolver for a single session used
// directly (tests, or a registry delegating a single jump hop).
func (s *Session) SSHClientFor(id string) (*ssh.Client, bool) {
	if id != s.id {
		return nil, false
	}
	return s.SSHClient()
}

// SSHClient exposes the live transport, used by the registry to let a
// session act as another session's jump host.
func (s *Session) SSHClient() (*ssh.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.client != nil
}

// Run executes a one-shot command over a fresh SSH session (distinct
// from the interactive shell) and returns its stdout. Used by
// the monitoring probe, which needs many short-lived commands rather
// than one long-lived shell.
func (s *Session) Run(cmd string) (string, error) {
	client, ok := s.SSHClient()
	if !ok {
		return "", ErrTransportGone
	}
	sess, err := client.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "open ssh session")
	}
	defer sess.Close()

	out, err := sess.Output(cmd)
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return string(out), exitErr
		}
		return "", errors.Wrap(err, "run command")
	}
	return string(out), nil
}

// EnsureSFTP lazily opens the SFTP subsystem the first time it is needed
// and reuses it afterward. Returns ErrTransportGone when the session has
// no live transport so callers can distinguish "session gone" from "sftp
// init failed".
func (s *Session) EnsureSFTP() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrTransportGone
	}
	if s.sftpCli != nil {
		return s.sftpCli, nil
	}
	cli, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, errors.Wrap(err, "initialize sftp subsystem")
	}
	s.sftpCli = cli
	return cli, nil
}

// HasShell reports whether a shell is already live.
func (s *Session) HasShell() bool {
	s.shellMu.Lock()
	defer s.shellMu.Unlock()
	return s.shell != nil
}

// CreateShell requests a PTY and starts an interactive shell, or returns
// the existing one. shellMu is held for the whole attempt so a concurrent
// caller waits on the in-flight creation rather than racing it — this is
// the single-shell invariant.
func (s *Session) CreateShell(cols, rows int) (*ShellIO, bool, error) {
	s.shellMu.Lock()
	defer s.shellMu.Unlock()

	if s.shell != nil {
		return &ShellIO{Stdin: s.shell.stdin, Stdout: s.shell.combined}, false, nil
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, false, ErrTransportGone
	}

	sess, err := client.NewSession()
	if err != nil {
		return nil, false, errors.Wrap(err, "open ssh session")
	}
	modes := ssh.TerminalModes{ssh.ECHO: 1}
	if err := sess.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		_ = sess.Close()
		return nil, false, errors.Wrap(err, "request pty")
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return nil, false, errors.Wrap(err, "stdin pipe")
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, false, errors.Wrap(err, "stdout pipe")
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		_ = sess.Close()
		return nil, false, errors.Wrap(err, "stderr pipe")
	}
	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		return nil, false, errors.Wrap(err, "start shell")
	}

	h := &shellHandle{
		session:  sess,
		stdin:    &syncWriter{w: stdin},
		combined: io.MultiReader(stdout, stderr),
		closed:   make(chan struct{}),
	}
	s.shell = h
	return &ShellIO{Stdin: h.stdin, Stdout: h.combined}, true, nil
}

// ShellClosed returns a channel closed once the current shell session
// exits, or nil if there is no shell.
func (s *Session) ShellClosed() <-chan struct{} {
	s.shellMu.Lock()
	defer s.shellMu.Unlock()
	if s.shell == nil {
		return nil
	}
	return s.shell.closed
}

// MarkShellClosed records that the shell pump observed EOF/error; it is
// idempotent and drops the shell handle so a future CreateShell starts
// fresh.
func (s *Session) MarkShellClosed() {
	s.shellMu.Lock()
	h := s.shell
	s.shell = nil
	s.shellMu.Unlock()
	if h != nil {
		h.closeOnce.Do(func() { close(h.closed) })
		_ = h.session.Close()
	}
}

// SendInput writes to the shell's stdin. Fails softly (false) when no
// shell exists.
func (s *Session) SendInput(data []byte) bool {
	s.shellMu.Lock()
	h := s.shell
	s.shellMu.Unlock()
	if h == nil {
		return false
	}
	if _, err := h.stdin.Write(data); err != nil {
		return false
	}
	s.Touch()
	return true
}

// Resize is a no-op when no shell exists.
func (s *Session) Resize(cols, rows int) {
	s.shellMu.Lock()
	h := s.shell
	s.shellMu.Unlock()
	if h == nil {
		return
	}
	_ = h.session.WindowChange(rows, cols)
	s.Touch()
}

// Disconnect closes shell, then SFTP, then the transport, in that order,
// swallowing every error along the way.
func (s *Session) Disconnect() {
	s.shellMu.Lock()
	h := s.shell
	s.shell = nil
	s.shellMu.Unlock()
	if h != nil {
		h.closeOnce.Do(func() { close(h.closed) })
		_ = h.session.Close()
	}

	s.mu.Lock()
	sftpCli := s.sftpCli
	client := s.client
	cancel := s.keepaliveCancel
	s.sftpCli = nil
	s.client = nil
	s.status = models.StatusDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sftpCli != nil {
		_ = sftpCli.Close()
	}
	if client != nil {
		_ = client.Close()
	}
}

// loadPrivateKeyFile reads and parses a private key from disk, for
// SessionConfig.PrivateKeyPath.
func loadPrivateKeyFile(path string, passphrase string) (ssh.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePrivateKey(string(b), passphrase)
}
