package handler

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"projectmonitor/pkg/blobstore"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BlobHandler serves evidence through the signed URLs issued by the blob
// store. The token is the only credential.
type BlobHandler struct {
	blobs  *blobstore.LocalStore
	logger *zap.Logger
}

func NewBlobHandler(blobs *blobstore.LocalStore, logger *zap.Logger) *BlobHandler {
	return &BlobHandler{blobs: blobs, logger: logger}
}

// ServeBlob GET /blobs/*path?token=
func (h *BlobHandler) ServeBlob(c *gin.Context) {
	objectPath := strings.TrimPrefix(c.Param("path"), "/")
	if err := h.blobs.Verify(objectPath, c.Query("token")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired link"})
		return
	}

	f, info, err := h.blobs.Open(objectPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, blobstore.ErrInvalidPath) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.logger.Error("ServeBlob: open failed", zap.String("path", objectPath), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer f.Close()

	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}
