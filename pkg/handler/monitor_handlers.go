package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sshgateway/pkg/apierr"
	"sshgateway/pkg/gateway"
	"sshgateway/pkg/monitor"
	"sshgateway/pkg/registry"
)

// MonitorHandler serves the Monitoring Probe's HTTP endpoints.
type MonitorHandler struct {
	Registry *registry.Registry
	Logger   *slog.Logger
}

func NewMonitorHandler(reg *registry.Registry, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{Registry: reg, Logger: logger}
}

func (h *MonitorHandler) session(c *gin.Context) (*gateway.Session, bool) {
	sess, ok := h.Registry.Get(c.Param("id"))
	if !ok {
		writeErr(c, apierr.New(apierr.SessionNotFound, "session not found"))
		return nil, false
	}
	return sess, true
}

// Snapshot returns a best-effort system stats snapshot.
func (h *MonitorHandler) Snapshot(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, monitor.Snapshot(sess))
}

// TopProcesses returns the top memory-consuming processes.
func (h *MonitorHandler) TopProcesses(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"processes": monitor.TopProcesses(sess)})
}

// LoginHistory returns recent login records, best effort.
func (h *MonitorHandler) LoginHistory(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": monitor.LoginHistory(sess)})
}
