package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"sshgateway/pkg/vault"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.json")
	v, err := vault.New(path, "test-passphrase")
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

func newCredentialRouter(h *CredentialHandler) *gin.Engine {
	router := gin.New()
	router.GET("/api/credentials", h.List)
	router.POST("/api/credentials", h.Create)
	router.GET("/api/credentials/:id", h.Get)
	router.GET("/api/credentials/:id/exists", h.Exists)
	router.DELETE("/api/credentials/:id", h.Delete)
	return router
}

func TestCredentialCreate_MissingHost_Rejected(t *testing.T) {
	h := NewCredentialHandler(newTestVault(t), testLogger())
	router := newCredentialRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/credentials", strings.NewReader(`{"username":"root"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCredentialLifecycle_CreateGetExistsDelete(t *testing.T) {
	h := NewCredentialHandler(newTestVault(t), testLogger())
	router := newCredentialRouter(h)

	createReq := httptest.NewRequest(http.MethodPost, "/api/credentials", strings.NewReader(
		`{"host":"10.0.0.5","port":22,"username":"root","authType":"password","password":"hunter2"}`))
	createReq.Header.Set("Content-Type", "application/json")
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)

	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", createRec.Code, createRec.Body.String())
	}
	var created struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected a generated id")
	}

	existsRec := httptest.NewRecorder()
	router.ServeHTTP(existsRec, httptest.NewRequest(http.MethodGet, "/api/credentials/"+created.ID+"/exists", nil))
	var exists struct {
		Exists bool `json:"exists"`
	}
	_ = json.Unmarshal(existsRec.Body.Bytes(), &exists)
	if !exists.Exists {
		t.Fatalf("expected credential to exist after create")
	}

	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/credentials/"+created.ID, nil))
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRec.Code)
	}

	deleteRec := httptest.NewRecorder()
	router.ServeHTTP(deleteRec, httptest.NewRequest(http.MethodDelete, "/api/credentials/"+created.ID, nil))
	if deleteRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", deleteRec.Code)
	}

	getAfterDelete := httptest.NewRecorder()
	router.ServeHTTP(getAfterDelete, httptest.NewRequest(http.MethodGet, "/api/credentials/"+created.ID, nil))
	if getAfterDelete.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", getAfterDelete.Code)
	}
}

func TestCredentialGet_UnknownID_NotFound(t *testing.T) {
	h := NewCredentialHandler(newTestVault(t), testLogger())
	router := newCredentialRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/credentials/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCredentialDelete_UnknownID_NotFound(t *testing.T) {
	h := NewCredentialHandler(newTestVault(t), testLogger())
	router := newCredentialRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/credentials/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
