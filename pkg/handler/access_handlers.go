package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sshgateway/pkg/access"
	"sshgateway/pkg/apierr"
)

// AccessHandler serves the Access Gate endpoints.
type AccessHandler struct {
	Gate   *access.Gate
	Logger *slog.Logger
}

func NewAccessHandler(gate *access.Gate, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{Gate: gate, Logger: logger}
}

// Check reports {required, verified} for the caller's cookie.
func (h *AccessHandler) Check(c *gin.Context) {
	token := access.CookieFromRequest(c.Request)
	required, verified := h.Gate.Check(token)
	c.JSON(http.StatusOK, gin.H{"required": required, "verified": verified})
}

type verifyRequest struct {
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// Verify checks the submitted password and, if remember is set, mints a
// signed cookie.
func (h *AccessHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("invalid access verify request", "error", err, "clientIP", c.ClientIP())
		writeErr(c, apierr.New(apierr.InvalidRequest, "malformed request body"))
		return
	}

	ok, token := h.Gate.Verify(req.Password, req.Remember)
	if !ok {
		h.Logger.Warn("access verify rejected", "clientIP", c.ClientIP())
		writeErr(c, apierr.New(apierr.AccessDenied, "invalid password"))
		return
	}
	if token != "" {
		h.Gate.SetCookie(c.Writer, token)
	}
	h.Logger.Info("access verified", "clientIP", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Logout clears the access cookie.
func (h *AccessHandler) Logout(c *gin.Context) {
	h.Gate.ClearCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// writeErr sends an apierr.Error as its mapped status and {code,message}
// body, the shape every handler in this package reports failures with.
func writeErr(c *gin.Context, err *apierr.Error) {
	c.JSON(err.Status(), err.Body())
}
