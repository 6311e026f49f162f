// Package sftprouter implements the SFTP Router: path-based file
// operations against a session's lazily-opened SFTP subsystem.
package sftprouter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"

	"sshgateway/pkg/gateway"
	"sshgateway/pkg/models"
)

// ErrSessionNotFound and ErrSFTPUnavailable are distinct failure kinds so
// the HTTP surface can map them to different status codes.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSFTPUnavailable  = errors.New("sftp not initialized")
)

// SessionLookup resolves a session id to its SSH Session. The Session
// Registry satisfies this.
type SessionLookup interface {
	Get(id string) (*gateway.Session, bool)
}

// Router exposes path-based SFTP operations scoped to a single session at
// a time; it holds no state of its own beyond the registry it queries.
type Router struct {
	sessions SessionLookup
}

// New builds a Router over the given session lookup.
func New(sessions SessionLookup) *Router {
	return &Router{sessions: sessions}
}

func (r *Router) client(sessionID string) (*sftp.Client, error) {
	sess, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	cli, err := sess.EnsureSFTP()
	if err != nil {
		if errors.Is(err, gateway.ErrTransportGone) {
			return nil, ErrSFTPUnavailable
		}
		return nil, errors.Wrap(ErrSFTPUnavailable, err.Error())
	}
	return cli, nil
}

// List returns the entries of path in the order the server reported
// them, without "." and "..".
func (r *Router) List(sessionID, path string) ([]models.FileEntry, error) {
	cli, err := r.client(sessionID)
	if err != nil {
		return nil, err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	infos, err := cli.ReadDir(clean)
	if err != nil {
		return nil, errors.Wrap(err, "list directory")
	}
	entries := make([]models.FileEntry, 0, len(infos))
	for _, fi := range infos {
		if fi.Name() == "." || fi.Name() == ".." {
			continue
		}
		entries = append(entries, toFileEntry(joinPath(clean, fi.Name()), fi))
	}
	return entries, nil
}

// Stat describes a single path.
func (r *Router) Stat(sessionID, path string) (models.FileEntry, error) {
	cli, err := r.client(sessionID)
	if err != nil {
		return models.FileEntry{}, err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return models.FileEntry{}, err
	}
	fi, err := cli.Stat(clean)
	if err != nil {
		return models.FileEntry{}, errors.Wrap(err, "stat")
	}
	return toFileEntry(clean, fi), nil
}

// Exists reports whether path exists, treating any stat error as false.
func (r *Router) Exists(sessionID, path string) (bool, error) {
	cli, err := r.client(sessionID)
	if err != nil {
		return false, err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return false, err
	}
	if _, err := cli.Stat(clean); err != nil {
		return false, nil
	}
	return true, nil
}

// Read opens path for streaming read; the caller must close it.
func (r *Router) Read(sessionID, path string) (io.ReadCloser, error) {
	cli, err := r.client(sessionID)
	if err != nil {
		return nil, err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	f, err := cli.Open(clean)
	if err != nil {
		return nil, errors.Wrap(err, "open for read")
	}
	return f, nil
}

// Write creates or truncates path and writes data to it.
func (r *Router) Write(sessionID, path string, data io.Reader) error {
	cli, err := r.client(sessionID)
	if err != nil {
		return err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return err
	}
	f, err := cli.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return errors.Wrap(err, "open for write")
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return errors.Wrap(err, "write file")
	}
	return nil
}

// CreateFile creates an empty file at path, failing if it already exists.
func (r *Router) CreateFile(sessionID, path string) error {
	cli, err := r.client(sessionID)
	if err != nil {
		return err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return err
	}
	f, err := cli.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	return f.Close()
}

// CreateDirectory creates path and any missing parents.
func (r *Router) CreateDirectory(sessionID, path string) error {
	cli, err := r.client(sessionID)
	if err != nil {
		return err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return err
	}
	if err := cli.MkdirAll(clean); err != nil {
		return errors.Wrap(err, "create directory")
	}
	return nil
}

// Rename moves src to dst.
func (r *Router) Rename(sessionID, src, dst string) error {
	cli, err := r.client(sessionID)
	if err != nil {
		return err
	}
	srcClean, err := normalizePath(src)
	if err != nil {
		return err
	}
	dstClean, err := normalizePath(dst)
	if err != nil {
		return err
	}
	if err := cli.Rename(srcClean, dstClean); err != nil {
		return errors.Wrap(err, "rename")
	}
	return nil
}

// DeleteFile removes a single file.
func (r *Router) DeleteFile(sessionID, path string) error {
	cli, err := r.client(sessionID)
	if err != nil {
		return err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return err
	}
	if err := cli.Remove(clean); err != nil {
		return errors.Wrap(err, "delete file")
	}
	return nil
}

// DeleteDirectory removes path recursively.
func (r *Router) DeleteDirectory(sessionID, path string) error {
	cli, err := r.client(sessionID)
	if err != nil {
		return err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return err
	}
	if err := removeAllRemote(cli, clean); err != nil {
		return errors.Wrap(err, "delete directory")
	}
	return nil
}

func removeAllRemote(cli *sftp.Client, path string) error {
	fi, err := cli.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return cli.Remove(path)
	}
	infos, err := cli.ReadDir(path)
	if err != nil {
		return err
	}
	for _, child := range infos {
		name := child.Name()
		if name == "." || name == ".." {
			continue
		}
		if err := removeAllRemote(cli, joinPath(path, name)); err != nil {
			return err
		}
	}
	return cli.RemoveDirectory(path)
}

func toFileEntry(path string, fi os.FileInfo) models.FileEntry {
	entryType := models.FileTypeFile
	if fi.IsDir() {
		entryType = models.FileTypeDirectory
	} else if fi.Mode()&os.ModeSymlink != 0 {
		entryType = models.FileTypeSymlink
	}
	return models.FileEntry{
		Name:         fi.Name(),
		Path:         path,
		Type:         entryType,
		Size:         fi.Size(),
		ModifiedTime: fi.ModTime().UnixMilli(),
	}
}

// normalizePath is a pure string operation: it never touches the local
// filesystem, only validates and slash-normalizes the remote path.
func normalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/", nil
	}
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path must be absolute: %s", p)
	}
	return cleanRemotePath(p), nil
}

// cleanRemotePath applies POSIX path cleaning without ever touching the
// local filesystem; remote paths are always slash-separated regardless
// of the gateway's own host OS.
func cleanRemotePath(p string) string {
	cleaned := filepath.ToSlash(filepath.Clean(p))
	if cleaned == "." {
		return "/"
	}
	return cleaned
}

func joinPath(dir, base string) string {
	if dir == "/" {
		return "/" + strings.TrimPrefix(base, "/")
	}
	return strings.TrimSuffix(dir, "/") + "/" + strings.TrimPrefix(base, "/")
}
