package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"sshgateway/pkg/gateway"
	"sshgateway/pkg/sftprouter"
)

// noSessionLookup never resolves a session, so every router operation
// fails with sftprouter.ErrSessionNotFound.
type noSessionLookup struct{}

func (noSessionLookup) Get(id string) (*gateway.Session, bool) { return nil, false }

func newFileRouter(h *FileHandler) *gin.Engine {
	router := gin.New()
	router.GET("/api/sessions/:id/files", h.List)
	router.POST("/api/sessions/:id/files", h.Create)
	router.PUT("/api/sessions/:id/files", h.Rename)
	router.DELETE("/api/sessions/:id/files", h.Delete)
	router.GET("/api/sessions/:id/files/exists", h.Exists)
	router.GET("/api/sessions/:id/files/content", h.ContentGet)
	router.PUT("/api/sessions/:id/files/content", h.ContentPut)
	return router
}

func TestFileList_UnknownSession_NotFound(t *testing.T) {
	router := sftprouter.New(noSessionLookup{})
	h := NewFileHandler(router, testLogger())
	g := newFileRouter(h)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/missing/files?path=/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", rec.Code, rec.Body.String())
	}
}

func TestFileCreate_MissingPath_Rejected(t *testing.T) {
	router := sftprouter.New(noSessionLookup{})
	h := NewFileHandler(router, testLogger())
	g := newFileRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/missing/files", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFileContentGet_UnknownSession_NotFound(t *testing.T) {
	router := sftprouter.New(noSessionLookup{})
	h := NewFileHandler(router, testLogger())
	g := newFileRouter(h)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/missing/files/content?path=/etc/hosts", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFileDelete_MissingPath_Rejected(t *testing.T) {
	router := sftprouter.New(noSessionLookup{})
	h := NewFileHandler(router, testLogger())
	g := newFileRouter(h)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/missing/files", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
