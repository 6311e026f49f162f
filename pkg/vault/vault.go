// Package vault implements the Credential Vault: an encrypted-at-rest
// key/value store of reusable SSH credentials, persisted as a single file.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"

	"sshgateway/pkg/models"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	keyLen       = 32
	saltFileName = "vault.salt"
)

// Vault is an encrypted file-backed store of CredentialRecord values keyed
// by id. A single in-process mutex serializes reads/writes; persistence
// is atomic write-then-rename so a crash mid-save never leaves a partial
// file on disk.
type Vault struct {
	mu       sync.Mutex
	dataFile string
	key      []byte // derived once at construction, held for process lifetime
	records  map[string]models.CredentialRecord
}

// New opens (or initializes) a vault backed by dataFile, deriving its
// symmetric key from passphrase via scrypt with a salt persisted alongside
// dataFile. A missing or undecodable data file is treated as an empty
// vault — the vault must still be writable afterwards.
func New(dataFile string, passphrase string) (*Vault, error) {
	if err := os.MkdirAll(filepath.Dir(dataFile), 0o700); err != nil {
		return nil, errors.Wrap(err, "create vault directory")
	}

	salt, err := loadOrCreateSalt(filepath.Join(filepath.Dir(dataFile), saltFileName))
	if err != nil {
		return nil, errors.Wrap(err, "load vault salt")
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, errors.Wrap(err, "derive vault key")
	}

	v := &Vault{
		dataFile: dataFile,
		key:      key,
		records:  make(map[string]models.CredentialRecord),
	}
	v.load()
	return v, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) == 32 {
		return b, nil
	}
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

// onDiskRecord is what actually lands in dataFile: an id plus the
// base64(nonce ‖ ciphertext ‖ tag) blob for its CredentialRecord.
type onDiskRecord struct {
	ID       string `json:"id"`
	Envelope string `json:"envelope"`
}

// load reads and decrypts dataFile into memory. A missing file or
// malformed JSON degrades to an empty in-memory vault rather than an
// error, so the vault stays writable even if its file is corrupt. A
// record that fails to decrypt or decode is skipped; the others load.
func (v *Vault) load() {
	b, err := os.ReadFile(v.dataFile)
	if err != nil {
		return
	}
	var onDisk []onDiskRecord
	if err := json.Unmarshal(b, &onDisk); err != nil {
		return
	}
	for _, rec := range onDisk {
		plain, err := v.decrypt(rec.Envelope)
		if err != nil {
			continue
		}
		var cred models.CredentialRecord
		if err := json.Unmarshal(plain, &cred); err != nil {
			continue
		}
		v.records[rec.ID] = cred
	}
}

// Save persists record under id, encrypting it and atomically replacing
// dataFile.
func (v *Vault) Save(id string, record models.CredentialRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	record.ID = id
	v.records[id] = record
	return v.flush()
}

// Get returns the record for id, or ok=false if absent or undecryptable.
// A decryption failure here fails closed: the caller must treat it as
// "credentials unusable", not as a transient error.
func (v *Vault) Get(id string) (models.CredentialRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.records[id]
	return rec, ok
}

// Has reports whether id has a stored credential.
func (v *Vault) Has(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.records[id]
	return ok
}

// Delete removes id's record, reporting whether it existed.
func (v *Vault) Delete(id string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.records[id]; !ok {
		return false, nil
	}
	delete(v.records, id)
	return true, v.flush()
}

// List returns the non-sensitive projection of every stored record.
// Secrets never leave this method.
func (v *Vault) List() []models.CredentialSummary {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.CredentialSummary, 0, len(v.records))
	for _, rec := range v.records {
		out = append(out, rec.Summary())
	}
	return out
}

// Connections returns id+metadata for every stored record, each flagged
// with hasStoredCredentials=true (every vault entry, by definition, has
// one).
func (v *Vault) Connections() []models.ConnectionInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.ConnectionInfo, 0, len(v.records))
	for _, rec := range v.records {
		out = append(out, models.ConnectionInfo{CredentialSummary: rec.Summary(), HasStoredCredentials: true})
	}
	return out
}

// flush must be called with v.mu held. It serializes every in-memory
// record, encrypts it, and writes the whole file via write-then-rename so
// a concurrent reader never observes a half-written file.
func (v *Vault) flush() error {
	onDisk := make([]onDiskRecord, 0, len(v.records))
	for id, rec := range v.records {
		plain, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "marshal credential record")
		}
		envelope, err := v.encrypt(plain)
		if err != nil {
			return errors.Wrap(err, "encrypt credential record")
		}
		onDisk = append(onDisk, onDiskRecord{ID: id, Envelope: envelope})
	}

	b, err := json.Marshal(onDisk)
	if err != nil {
		return errors.Wrap(err, "marshal vault file")
	}

	tmp := v.dataFile + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrap(err, "write vault temp file")
	}
	if err := os.Rename(tmp, v.dataFile); err != nil {
		return errors.Wrap(err, "rename vault temp file")
	}
	return nil
}

// encrypt returns base64(nonce ‖ ciphertext ‖ tag) for plaintext.
func (v *Vault) encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt. Any malformed envelope or auth-tag mismatch
// is reported as a plain error; callers treat that as "record absent".
func (v *Vault) decrypt(envelope string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("envelope too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
