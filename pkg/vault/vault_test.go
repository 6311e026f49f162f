package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sshgateway/pkg/models"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	dir := t.TempDir()
	v, err := New(filepath.Join(dir, "credentials.json"), "test-passphrase")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func TestSaveThenGet_RoundTrips(t *testing.T) {
	v := newTestVault(t)
	rec := models.CredentialRecord{Host: "h", Port: 22, Username: "u", AuthType: models.AuthPassword, Password: "pw"}

	if err := v.Save("c1", rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok := v.Get("c1")
	if !ok {
		t.Fatalf("Get() ok = false, want true")
	}
	if got.Host != "h" || got.Password != "pw" {
		t.Fatalf("Get() = %+v", got)
	}
}

func TestList_NeverReturnsSecrets(t *testing.T) {
	v := newTestVault(t)
	_ = v.Save("c1", models.CredentialRecord{Host: "h", Username: "u", AuthType: models.AuthPassword, Password: "topsecret"})

	b, err := os.ReadFile(v.dataFile)
	if err != nil {
		t.Fatalf("read data file: %v", err)
	}
	if string(b) == "" {
		t.Fatalf("expected non-empty data file")
	}
	if strings.Contains(string(b), "topsecret") {
		t.Fatalf("data file contains the plaintext password")
	}

	list := v.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1", len(list))
	}
}

func TestDelete_IsIdempotentInReportingButRemoves(t *testing.T) {
	v := newTestVault(t)
	_ = v.Save("c1", models.CredentialRecord{Host: "h"})

	ok, err := v.Delete("c1")
	if err != nil || !ok {
		t.Fatalf("Delete() = %v, %v; want true, nil", ok, err)
	}
	ok, err = v.Delete("c1")
	if err != nil || ok {
		t.Fatalf("second Delete() = %v, %v; want false, nil", ok, err)
	}
}

func TestReopen_DecryptsWithSamePassphrase(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "credentials.json")

	v1, err := New(dataFile, "pass-1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := v1.Save("c1", models.CredentialRecord{Host: "h", Username: "u"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	v2, err := New(dataFile, "pass-1")
	if err != nil {
		t.Fatalf("New() (reopen) error = %v", err)
	}
	got, ok := v2.Get("c1")
	if !ok || got.Host != "h" {
		t.Fatalf("Get() after reopen = %+v, %v", got, ok)
	}
}

func TestReopen_WrongPassphraseFailsClosed(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "credentials.json")

	v1, err := New(dataFile, "pass-1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = v1.Save("c1", models.CredentialRecord{Host: "h"})

	v2, err := New(dataFile, "pass-2")
	if err != nil {
		t.Fatalf("New() (wrong passphrase) error = %v", err)
	}
	if _, ok := v2.Get("c1"); ok {
		t.Fatalf("Get() with wrong passphrase should fail closed")
	}
}

func TestCorruptFile_TreatedAsEmptyButStillWritable(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(dataFile, []byte("not json at all"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	v, err := New(dataFile, "pass")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(v.List()) != 0 {
		t.Fatalf("expected empty vault from corrupt file")
	}
	if err := v.Save("c1", models.CredentialRecord{Host: "h"}); err != nil {
		t.Fatalf("Save() after corrupt load error = %v", err)
	}
}
