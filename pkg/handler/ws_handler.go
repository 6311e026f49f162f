package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sshgateway/pkg/bridge"
)

// WSHandler upgrades incoming connections and hands them to the Shell
// Bridge. Origin checking is left permissive: the access gate already
// guards the upgrade route.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSHandler struct {
	Bridge *bridge.Bridge
	Logger *slog.Logger
}

func NewWSHandler(b *bridge.Bridge, logger *slog.Logger) *WSHandler {
	return &WSHandler{Bridge: b, Logger: logger}
}

// Serve upgrades the connection and blocks until the bridge's read loop
// for it exits.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "error", err, "clientIP", c.ClientIP())
		return
	}
	h.Bridge.Serve(conn)
}
