package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"sshgateway/pkg/apierr"
	"sshgateway/pkg/models"
	"sshgateway/pkg/sftprouter"
)

// FileHandler serves the SFTP Router's HTTP endpoints, scoped to a single
// session id taken from the route.
type FileHandler struct {
	Router *sftprouter.Router
	Logger *slog.Logger
}

func NewFileHandler(router *sftprouter.Router, logger *slog.Logger) *FileHandler {
	return &FileHandler{Router: router, Logger: logger}
}

func (h *FileHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sftprouter.ErrSessionNotFound):
		writeErr(c, apierr.New(apierr.SessionNotFound, "session not found"))
	case errors.Is(err, sftprouter.ErrSFTPUnavailable):
		writeErr(c, apierr.New(apierr.SFTPError, "sftp subsystem unavailable"))
	default:
		h.Logger.Error("sftp operation failed", "error", err)
		writeErr(c, apierr.New(apierr.SFTPError, "sftp operation failed"))
	}
}

// List returns the entries of ?path.
func (h *FileHandler) List(c *gin.Context) {
	id := c.Param("id")
	path := c.DefaultQuery("path", "/")
	entries, err := h.Router.List(id, path)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "files": entries})
}

type createFileRequest struct {
	Path string          `json:"path"`
	Type models.FileType `json:"type"`
}

// Create makes an empty file or a directory, depending on type.
func (h *FileHandler) Create(c *gin.Context) {
	var req createFileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		writeErr(c, apierr.New(apierr.InvalidRequest, "path is required"))
		return
	}
	id := c.Param("id")
	var err error
	if req.Type == models.FileTypeDirectory {
		err = h.Router.CreateDirectory(id, req.Path)
	} else {
		err = h.Router.CreateFile(id, req.Path)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": req.Path, "type": req.Type})
}

type renameFileRequest struct {
	Path    string `json:"path"`
	NewPath string `json:"newPath"`
}

// Rename moves an existing path to newPath.
func (h *FileHandler) Rename(c *gin.Context) {
	var req renameFileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.NewPath == "" {
		writeErr(c, apierr.New(apierr.InvalidRequest, "path and newPath are required"))
		return
	}
	id := c.Param("id")
	if err := h.Router.Rename(id, req.Path, req.NewPath); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"oldPath": req.Path, "newPath": req.NewPath})
}

// Delete removes a file or directory, selected by ?type.
func (h *FileHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	path := c.Query("path")
	if path == "" {
		writeErr(c, apierr.New(apierr.InvalidRequest, "path is required"))
		return
	}
	var err error
	if c.Query("type") == string(models.FileTypeDirectory) {
		err = h.Router.DeleteDirectory(id, path)
	} else {
		err = h.Router.DeleteFile(id, path)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Exists reports whether ?path exists.
func (h *FileHandler) Exists(c *gin.Context) {
	id := c.Param("id")
	path := c.Query("path")
	exists, err := h.Router.Exists(id, path)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "exists": exists})
}

// ContentGet reads a small text file's full content as a JSON string.
func (h *FileHandler) ContentGet(c *gin.Context) {
	id := c.Param("id")
	path := c.Query("path")
	rc, err := h.Router.Read(id, path)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		h.Logger.Error("read file content failed", "path", path, "error", err)
		writeErr(c, apierr.New(apierr.SFTPError, "failed to read file"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "content": string(content), "size": len(content)})
}

type writeContentRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ContentPut overwrites a file with the submitted content.
func (h *FileHandler) ContentPut(c *gin.Context) {
	var req writeContentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		writeErr(c, apierr.New(apierr.InvalidRequest, "path is required"))
		return
	}
	id := c.Param("id")
	if err := h.Router.Write(id, req.Path, bytes.NewReader([]byte(req.Content))); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": req.Path, "success": true})
}

// Upload buffers a multipart file fully in memory before streaming it to
// the remote path, matching the router's non-streaming write contract.
func (h *FileHandler) Upload(c *gin.Context) {
	id := c.Param("id")
	path := c.PostForm("path")
	if path == "" {
		writeErr(c, apierr.New(apierr.InvalidRequest, "path is required"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeErr(c, apierr.New(apierr.InvalidRequest, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		writeErr(c, apierr.New(apierr.Internal, "failed to read uploaded file"))
		return
	}
	defer src.Close()

	buf, err := io.ReadAll(src)
	if err != nil {
		writeErr(c, apierr.New(apierr.Internal, "failed to read uploaded file"))
		return
	}

	remotePath := path
	if len(remotePath) == 0 || remotePath[len(remotePath)-1] == '/' {
		remotePath += fileHeader.Filename
	}

	if err := h.Router.Write(id, remotePath, bytes.NewReader(buf)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": remotePath, "size": len(buf), "success": true})
}

// Download buffers the remote file fully before sending it, so an SFTP
// failure midway doesn't leave a truncated response committed.
func (h *FileHandler) Download(c *gin.Context) {
	id := c.Param("id")
	path := c.Query("path")
	rc, err := h.Router.Read(id, path)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		h.Logger.Error("download read failed", "path", path, "error", err)
		writeErr(c, apierr.New(apierr.SFTPError, "failed to read file"))
		return
	}

	filename := path
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '/' {
			filename = filename[i+1:]
			break
		}
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/octet-stream", buf)
}
