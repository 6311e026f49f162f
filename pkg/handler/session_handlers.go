package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sshgateway/pkg/apierr"
	"sshgateway/pkg/models"
	"sshgateway/pkg/registry"
	"sshgateway/pkg/vault"
)

// SessionHandler serves the Session Registry's HTTP endpoints.
type SessionHandler struct {
	Registry *registry.Registry
	Vault    *vault.Vault
	Logger   *slog.Logger
}

func NewSessionHandler(reg *registry.Registry, v *vault.Vault, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{Registry: reg, Vault: v, Logger: logger}
}

// Create dials a new SSH session, either from inline credentials or a
// stored credential id, and registers it.
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("invalid create session request", "error", err, "clientIP", c.ClientIP())
		writeErr(c, apierr.New(apierr.InvalidRequest, "malformed request body"))
		return
	}

	cfg := models.SessionConfig{
		Host:           req.Host,
		Port:           req.Port,
		Username:       req.Username,
		AuthType:       req.AuthType,
		Password:       req.Password,
		PrivateKey:     req.PrivateKey,
		PrivateKeyPath: req.PrivateKeyPath,
		Passphrase:     req.Passphrase,
	}

	if req.CredentialID != "" {
		record, ok := h.Vault.Get(req.CredentialID)
		if !ok {
			writeErr(c, apierr.New(apierr.CredentialNotFound, "credential not found"))
			return
		}
		cfg.Host = record.Host
		cfg.Port = record.Port
		cfg.Username = record.Username
		cfg.AuthType = record.AuthType
		cfg.Password = record.Password
		cfg.PrivateKey = record.PrivateKey
		cfg.PrivateKeyPath = record.PrivateKeyPath
		cfg.Passphrase = record.Passphrase
	}

	if cfg.Host == "" || cfg.Username == "" {
		writeErr(c, apierr.New(apierr.InvalidRequest, "host and username are required"))
		return
	}

	sess, err := h.Registry.Connect(c.Request.Context(), cfg)
	if err != nil {
		h.Logger.Warn("session dial failed", "host", cfg.Host, "clientIP", c.ClientIP(), "error", err)
	}
	status, _ := sess.Status()
	c.JSON(http.StatusCreated, gin.H{"sessionId": sess.ID(), "status": status})
}

// Status reports a session's lifecycle state.
func (h *SessionHandler) Status(c *gin.Context) {
	id := c.Param("id")
	status, errText, ok := h.Registry.Status(id)
	if !ok {
		writeErr(c, apierr.New(apierr.SessionNotFound, "session not found"))
		return
	}
	body := gin.H{"sessionId": id, "status": status}
	if errText != "" {
		body["error"] = errText
	}
	c.JSON(http.StatusOK, body)
}

// Delete tears down and removes a session.
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !h.Registry.Disconnect(id) {
		writeErr(c, apierr.New(apierr.SessionNotFound, "session not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

// Disconnect is the beacon endpoint the frontend fires on page unload. It
// always returns 200, whether or not the session still existed, since the
// beacon has no way to observe the response.
func (h *SessionHandler) Disconnect(c *gin.Context) {
	id := c.Param("id")
	h.Registry.Disconnect(id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
