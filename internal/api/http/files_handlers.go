package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/providers/filesystem"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

// pathParam returns the wildcard path without its leading slash
func pathParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

// GetFile streams a file, honoring a single byte range
func (h *Handlers) GetFile(c *gin.Context) {
	rel := pathParam(c)

	rng, err := parseRange(c.GetHeader("Range"), rel)
	if err != nil {
		h.rangeNotSatisfiable(c, rel, err)
		return
	}

	dl, err := h.files.Read(c.Request.Context(), rel, rng)
	if err != nil {
		if errors.Is(err, fserr.ErrInvalidRange) {
			h.rangeNotSatisfiable(c, rel, err)
			return
		}
		respondError(c, err)
		return
	}
	defer dl.Close()

	status := http.StatusOK
	extra := map[string]string{
		"Accept-Ranges": "bytes",
		"Last-Modified": dl.ModTime.UTC().Format(http.TimeFormat),
	}
	if dl.Partial {
		status = http.StatusPartialContent
		extra["Content-Range"] = contentRange(dl.Offset, dl.Length, dl.Size)
	}

	c.DataFromReader(status, dl.Length, dl.ContentType, dl, extra)
}

// rangeNotSatisfiable replies 416 with the current size when it is known
func (h *Handlers) rangeNotSatisfiable(c *gin.Context, rel string, err error) {
	if info, statErr := h.files.Stat(c.Request.Context(), rel); statErr == nil && !info.IsDir {
		c.Header("Content-Range", "bytes */"+strconv.FormatInt(info.Size, 10))
	}
	respondError(c, err)
}

// HeadFile replies with the headers GetFile would send
func (h *Handlers) HeadFile(c *gin.Context) {
	info, err := h.files.Stat(c.Request.Context(), pathParam(c))
	if err != nil {
		c.AbortWithStatus(statusFor(err))
		return
	}
	if info.IsDir {
		c.AbortWithStatus(http.StatusConflict)
		return
	}

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	c.Header("Content-Type", info.ContentType)
	c.Header("Last-Modified", info.Modified.UTC().Format(http.TimeFormat))
	c.Status(http.StatusOK)
}

// PutFile stores the request body at path
func (h *Handlers) PutFile(c *gin.Context) {
	rel := pathParam(c)

	mode := types.CreateOrTruncate
	switch c.Query("mode") {
	case "", "overwrite":
	case "create":
		mode = types.CreateOnly
	default:
		badRequest(c, "write", rel, "unknown mode %q", c.Query("mode"))
		return
	}
	if strings.TrimSpace(c.GetHeader("If-None-Match")) == "*" {
		mode = types.CreateOnly
	}

	res, err := h.files.Write(c.Request.Context(), rel, c.Request.Body, mode)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	h.logger.Debug("File stored",
		zap.String("path", res.Path),
		zap.Int64("bytes", res.BytesTransferred),
		zap.Bool("created", res.Created))
	c.JSON(status, res)
}

// ListDir lists a directory as a JSON array of entries
func (h *Handlers) ListDir(c *gin.Context) {
	rel := strings.TrimSuffix(pathParam(c), "/")

	var opts filesystem.ListOptions
	if v := c.Query("recursive"); v != "" {
		recursive, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "list", rel, "recursive must be a boolean, got %q", v)
			return
		}
		opts.Recursive = recursive
	}
	opts.Pattern = c.Query("pattern")

	res, err := h.files.List(c.Request.Context(), rel, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	entries := res.Entries
	if entries == nil {
		entries = []types.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}
