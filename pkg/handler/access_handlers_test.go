package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"sshgateway/pkg/access"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAccessCheck_NoPasswordConfigured_ReportsNotRequired(t *testing.T) {
	gate := access.New("", []byte("secret"), false)
	h := NewAccessHandler(gate, testLogger())

	router := gin.New()
	router.GET("/api/access/check", h.Check)

	req := httptest.NewRequest(http.MethodGet, "/api/access/check", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["required"] != false || body["verified"] != true {
		t.Fatalf("body = %v, want required=false verified=true", body)
	}
}

func TestAccessVerify_WrongPassword_Rejected(t *testing.T) {
	gate := access.New("correct-horse", []byte("secret"), false)
	h := NewAccessHandler(gate, testLogger())

	router := gin.New()
	router.POST("/api/access/verify", h.Verify)

	req := httptest.NewRequest(http.MethodPost, "/api/access/verify", strings.NewReader(`{"password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAccessVerify_CorrectPassword_SetsCookie(t *testing.T) {
	gate := access.New("correct-horse", []byte("secret"), false)
	h := NewAccessHandler(gate, testLogger())

	router := gin.New()
	router.POST("/api/access/verify", h.Verify)

	req := httptest.NewRequest(http.MethodPost, "/api/access/verify", strings.NewReader(`{"password":"correct-horse","remember":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	cookies := rec.Result().Cookies()
	found := false
	for _, ck := range cookies {
		if ck.Name == access.CookieName() {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected access cookie to be set, got %v", cookies)
	}
}

func TestAccessLogout_ClearsCookie(t *testing.T) {
	gate := access.New("correct-horse", []byte("secret"), false)
	h := NewAccessHandler(gate, testLogger())

	router := gin.New()
	router.POST("/api/access/logout", h.Logout)

	req := httptest.NewRequest(http.MethodPost, "/api/access/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
