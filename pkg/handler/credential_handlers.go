package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sshgateway/pkg/apierr"
	"sshgateway/pkg/models"
	"sshgateway/pkg/vault"
)

// CredentialHandler serves the Credential Vault's HTTP endpoints.
type CredentialHandler struct {
	Vault  *vault.Vault
	Logger *slog.Logger
}

func NewCredentialHandler(v *vault.Vault, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{Vault: v, Logger: logger}
}

// List returns every stored credential's non-sensitive summary.
func (h *CredentialHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credentials": h.Vault.List()})
}

type createCredentialRequest struct {
	Host           string          `json:"host"`
	Port           int             `json:"port"`
	Username       string          `json:"username"`
	AuthType       models.AuthType `json:"authType"`
	Password       string          `json:"password,omitempty"`
	PrivateKey     string          `json:"privateKey,omitempty"`
	PrivateKeyPath string          `json:"privateKeyPath,omitempty"`
	Passphrase     string          `json:"passphrase,omitempty"`
}

// Create stores a new credential, generating its id.
func (h *CredentialHandler) Create(c *gin.Context) {
	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("invalid create credential request", "error", err, "clientIP", c.ClientIP())
		writeErr(c, apierr.New(apierr.InvalidRequest, "malformed request body"))
		return
	}
	if req.Host == "" || req.Username == "" {
		writeErr(c, apierr.New(apierr.InvalidRequest, "host and username are required"))
		return
	}

	id := uuid.NewString()
	record := models.CredentialRecord{
		ID:             id,
		Host:           req.Host,
		Port:           req.Port,
		Username:       req.Username,
		AuthType:       req.AuthType,
		Password:       req.Password,
		PrivateKey:     req.PrivateKey,
		PrivateKeyPath: req.PrivateKeyPath,
		Passphrase:     req.Passphrase,
	}
	if err := h.Vault.Save(id, record); err != nil {
		h.Logger.Error("failed to save credential", "credentialId", id, "error", err)
		writeErr(c, apierr.New(apierr.Internal, "failed to save credential"))
		return
	}
	h.Logger.Info("credential created", "credentialId", id, "clientIP", c.ClientIP())
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

// Get returns the full stored record for id.
func (h *CredentialHandler) Get(c *gin.Context) {
	id := c.Param("id")
	record, ok := h.Vault.Get(id)
	if !ok {
		writeErr(c, apierr.New(apierr.CredentialNotFound, "credential not found"))
		return
	}
	c.JSON(http.StatusOK, record)
}

// Exists reports whether id has a stored credential.
func (h *CredentialHandler) Exists(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"exists": h.Vault.Has(id)})
}

// Delete removes id's stored credential.
func (h *CredentialHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.Vault.Delete(id)
	if err != nil {
		h.Logger.Error("failed to delete credential", "credentialId", id, "error", err)
		writeErr(c, apierr.New(apierr.Internal, "failed to delete credential"))
		return
	}
	if !ok {
		writeErr(c, apierr.New(apierr.CredentialNotFound, "credential not found"))
		return
	}
	h.Logger.Info("credential deleted", "credentialId", id, "clientIP", c.ClientIP())
	c.Status(http.StatusNoContent)
}
