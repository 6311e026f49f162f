package models

import "time"

// AuthType identifies how a session or credential authenticates to the
// remote SSH server.
type AuthType string

const (
	AuthPassword AuthType = "password"
	AuthKey      AuthType = "key"
)

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	StatusConnecting   SessionStatus = "connecting"
	StatusConnected    SessionStatus = "connected"
	StatusDisconnected SessionStatus = "disconnected"
	StatusError        SessionStatus = "error"
)

// SessionConfig carries everything needed to dial an outbound SSH
// connection. Secrets (Password, PrivateKey, Passphrase) are only held
// long enough to complete the handshake; they are never retained on the
// Session itself afterwards.
type SessionConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Username       string   `json:"username"`
	AuthType       AuthType `json:"authType"`
	Password       string   `json:"password,omitempty"`
	PrivateKey     string   `json:"privateKey,omitempty"`
	PrivateKeyPath string   `json:"privateKeyPath,omitempty"`
	Passphrase     string   `json:"passphrase,omitempty"`

	// ConnectionMode and its Jump/Proxy fields select an indirect route to
	// the target host; when empty, a session dials directly.
	ConnectionMode string `json:"connectionMode,omitempty"` // "", "jump", "proxy"
	JumpSessionID  string `json:"jumpSessionId,omitempty"`
	ProxyType      string `json:"proxyType,omitempty"` // socks5, socks4, http
	ProxyHost      string `json:"proxyHost,omitempty"`
	ProxyPort      int    `json:"proxyPort,omitempty"`
	ProxyUsername  string `json:"proxyUsername,omitempty"`
	ProxyPassword  string `json:"proxyPassword,omitempty"`
}

// SessionInfo is the externally visible projection of a Session: no
// transport handles, no secrets.
type SessionInfo struct {
	ID             string        `json:"sessionId"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Username       string        `json:"username"`
	Status         SessionStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
}

// CreateSessionRequest is the body of POST /api/sessions. CredentialID, if
// set, tells the surface to load a stored credential instead of requiring
// inline secrets.
type CreateSessionRequest struct {
	CredentialID   string   `json:"credentialId,omitempty"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Username       string   `json:"username"`
	AuthType       AuthType `json:"authType"`
	Password       string   `json:"password,omitempty"`
	PrivateKey     string   `json:"privateKey,omitempty"`
	PrivateKeyPath string   `json:"privateKeyPath,omitempty"`
	Passphrase     string   `json:"passphrase,omitempty"`
}

// CredentialRecord is a reusable, persisted SSH credential. Every field of
// this struct is encrypted as a unit by the vault; the CredentialSummary
// projection below is what "list" is allowed to hand back.
type CredentialRecord struct {
	ID             string   `json:"id"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Username       string   `json:"username"`
	AuthType       AuthType `json:"authType"`
	Password       string   `json:"password,omitempty"`
	PrivateKey     string   `json:"privateKey,omitempty"`
	PrivateKeyPath string   `json:"privateKeyPath,omitempty"`
	Passphrase     string   `json:"passphrase,omitempty"`
}

// CredentialSummary is the non-sensitive projection returned by list().
type CredentialSummary struct {
	ID       string   `json:"id"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	AuthType AuthType `json:"authType"`
}

func (r CredentialRecord) Summary() CredentialSummary {
	return CredentialSummary{
		ID:       r.ID,
		Host:     r.Host,
		Port:     r.Port,
		Username: r.Username,
		AuthType: r.AuthType,
	}
}

// ConnectionInfo is returned by connections(): summary metadata plus
// whether a stored credential exists for this id.
type ConnectionInfo struct {
	CredentialSummary
	HasStoredCredentials bool `json:"hasStoredCredentials"`
}

// FileType classifies an SFTP directory entry.
type FileType string

const (
	FileTypeFile      FileType = "file"
	FileTypeDirectory FileType = "directory"
	FileTypeSymlink   FileType = "symlink"
)

// FileEntry describes one remote file or directory, as returned by the
// SFTP router.
type FileEntry struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Type         FileType `json:"type"`
	Size         int64    `json:"size"`
	ModifiedTime int64    `json:"modifiedTime"`
}

// LoginRecord describes one row of login-history output from the
// monitoring probe.
type LoginRecord struct {
	User         string `json:"user"`
	SourceAddr   string `json:"sourceAddress"`
	Timestamp    int64  `json:"timestamp"`
	Duration     string `json:"duration"`
	Status       string `json:"status"` // success, failed, current
}

// MonitorSnapshot is the typed record produced by the monitoring probe's
// snapshot() operation.
type MonitorSnapshot struct {
	Timestamp int64         `json:"timestamp"`
	CPU       CPUStats      `json:"cpu"`
	Memory    MemoryStats   `json:"memory"`
	Disk      DiskStats     `json:"disk"`
	Network   NetworkStats  `json:"network"`
	System    SystemStats   `json:"system"`
}

type CPUStats struct {
	Percent float64 `json:"percent"`
	Model   string  `json:"model"`
}

type MemoryStats struct {
	TotalBytes     int64   `json:"totalBytes"`
	UsedBytes      int64   `json:"usedBytes"`
	FreeBytes      int64   `json:"freeBytes"`
	AvailableBytes int64   `json:"availableBytes"`
	Percent        float64 `json:"percent"`
}

type DiskStats struct {
	TotalBytes int64   `json:"totalBytes"`
	UsedBytes  int64   `json:"usedBytes"`
	FreeBytes  int64   `json:"freeBytes"`
	Percent    float64 `json:"percent"`
}

type NetworkStats struct {
	Interface string `json:"interface"`
	RxBytes   int64  `json:"rxBytes"`
	TxBytes   int64  `json:"txBytes"`
}

type SystemStats struct {
	Uptime     string  `json:"uptime"`
	Load1      float64 `json:"load1"`
	Load5      float64 `json:"load5"`
	Load15     float64 `json:"load15"`
	Hostname   string  `json:"hostname"`
	OSName     string  `json:"osName"`
	OSVersion  string  `json:"osVersion"`
	Kernel     string  `json:"kernel"`
}

// ProcessInfo is one row of `ps aux --sort=-%mem` output, as returned by
// topProcesses().
type ProcessInfo struct {
	User    string  `json:"user"`
	PID     int     `json:"pid"`
	CPU     float64 `json:"cpu"`
	Mem     float64 `json:"mem"`
	Command string  `json:"command"`
}
