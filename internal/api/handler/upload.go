package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// UploadImage stores a chat image from the multipart field "image" and returns
// its public URL, to be sent as a message's imageRef.
func (h *Handler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxImageSize+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		h.respondError(c, apperr.Invalid("no image file provided"))
		return
	}
	if file.Size > config.MaxImageSize {
		h.respondError(c, apperr.Invalid("image exceeds %d bytes", config.MaxImageSize))
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !config.AllowedImageExts[ext] {
		h.respondError(c, apperr.Invalid("unsupported image type %q", ext))
		return
	}
	if err := sniffImage(file); err != nil {
		h.respondError(c, err)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.respondError(c, apperr.Server("create upload dir", err))
		return
	}
	name := "chat-" + strings.ToLower(ulid.Make().String()) + ext
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, name)); err != nil {
		h.respondError(c, apperr.Server("save upload", err))
		return
	}

	h.log.Info().Str("file", name).Int64("size", file.Size).Str("identity", identityFrom(c).String()).Msg("image uploaded")
	c.JSON(http.StatusOK, gin.H{"success": true, "imageUrl": "/uploads/" + name})
}

// sniffImage rejects files whose content is not an image, whatever their name.
func sniffImage(file *multipart.FileHeader) error {
	f, err := file.Open()
	if err != nil {
		return apperr.Server("open upload", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return apperr.Server("read upload", err)
	}
	if ct := http.DetectContentType(head[:n]); !strings.HasPrefix(ct, "image/") {
		return apperr.Invalid("content is %s, not an image", ct)
	}
	return nil
}
