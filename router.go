package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sshgateway/pkg/access"
	"sshgateway/pkg/apierr"
	"sshgateway/pkg/bridge"
	"sshgateway/pkg/config"
	"sshgateway/pkg/handler"
	"sshgateway/pkg/registry"
	"sshgateway/pkg/sftprouter"
	"sshgateway/pkg/vault"
)

// Server owns the gin engine and the listener it's bound to.
type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	host      string
	port      int

	registry *registry.Registry
	stopped  chan struct{}
}

// NewServer wires every component (vault, access gate, session registry,
// sftp router, shell bridge) into a gin engine.
func NewServer(rt *config.Runtime, logger *slog.Logger) (*Server, error) {
	v, err := vault.New(rt.VaultPath, rt.VaultPassphrase)
	if err != nil {
		return nil, fmt.Errorf("open credential vault: %w", err)
	}

	gate := access.New(rt.AccessPassword, rt.TokenSecret, rt.Production)
	reg := registry.New(logger)
	router := sftprouter.New(reg)
	shellBridge := bridge.New(reg, logger)

	accessHandler := handler.NewAccessHandler(gate, logger)
	credHandler := handler.NewCredentialHandler(v, logger)
	sessionHandler := handler.NewSessionHandler(reg, v, logger)
	fileHandler := handler.NewFileHandler(router, logger)
	monitorHandler := handler.NewMonitorHandler(reg, logger)
	wsHandler := handler.NewWSHandler(shellBridge, logger)

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(corsMiddleware())

	ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	accessGroup := ginEngine.Group("/api/access")
	accessGroup.GET("/check", accessHandler.Check)
	accessGroup.POST("/verify", accessHandler.Verify)
	accessGroup.POST("/logout", accessHandler.Logout)

	protected := ginEngine.Group("/api")
	protected.Use(gateMiddleware(gate))
	{
		credGroup := protected.Group("/credentials")
		credGroup.GET("", credHandler.List)
		credGroup.POST("", credHandler.Create)
		credGroup.GET(":id", credHandler.Get)
		credGroup.GET(":id/exists", credHandler.Exists)
		credGroup.DELETE(":id", credHandler.Delete)

		sessionsGroup := protected.Group("/sessions")
		sessionsGroup.POST("", sessionHandler.Create)
		sessionsGroup.GET(":id/status", sessionHandler.Status)
		sessionsGroup.DELETE(":id", sessionHandler.Delete)
		sessionsGroup.POST(":id/disconnect", sessionHandler.Disconnect)

		sessionsGroup.GET(":id/files", fileHandler.List)
		sessionsGroup.POST(":id/files", fileHandler.Create)
		sessionsGroup.PUT(":id/files", fileHandler.Rename)
		sessionsGroup.DELETE(":id/files", fileHandler.Delete)
		sessionsGroup.GET(":id/files/exists", fileHandler.Exists)
		sessionsGroup.GET(":id/files/content", fileHandler.ContentGet)
		sessionsGroup.PUT(":id/files/content", fileHandler.ContentPut)
		sessionsGroup.POST(":id/files/upload", fileHandler.Upload)
		sessionsGroup.GET(":id/files/download", fileHandler.Download)

		sessionsGroup.GET(":id/monitor", monitorHandler.Snapshot)
		sessionsGroup.GET(":id/top-processes", monitorHandler.TopProcesses)
		sessionsGroup.GET(":id/login-history", monitorHandler.LoginHistory)
	}

	// The websocket upgrade carries its own session binding per message, so
	// it sits outside the REST access-gate group but still requires a
	// verified cookie before the upgrade completes.
	ginEngine.GET("/ws", gateMiddleware(gate), wsHandler.Serve)

	return &Server{
		ginEngine: ginEngine,
		logger:    logger,
		host:      rt.Host,
		port:      rt.Port,
		registry:  reg,
		stopped:   make(chan struct{}),
	}, nil
}

// gateMiddleware rejects requests without a verified access cookie when
// the gate requires a password. It is a no-op when no password is
// configured.
func gateMiddleware(gate *access.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := access.CookieFromRequest(c.Request)
		required, verified := gate.Check(token)
		if required && !verified {
			err := apierr.New(apierr.AccessDenied, "access verification required")
			c.AbortWithStatusJSON(err.Status(), err.Body())
			return
		}
		c.Next()
	}
}

// corsMiddleware allows the typical localhost dev origins used by the
// gateway's browser frontend.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Start binds the listener and serves until ctx is canceled, at which
// point it drains the session registry and shuts the HTTP server down.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.logger.Info("gateway listening", "addr", addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down")
		s.registry.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown failed", "error", err)
		}
		close(s.stopped)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

// Wait blocks until the server has finished its graceful shutdown
// sequence. It only returns once Start's context has been canceled.
func (s *Server) Wait() {
	<-s.stopped
}
