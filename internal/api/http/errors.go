package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
)

// StatusInsufficientStorage is returned when the disk or quota is full
const StatusInsufficientStorage = http.StatusInsufficientStorage

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error kind to an HTTP status code
func statusFor(err error) int {
	switch fserr.KindOf(err) {
	case fserr.KindPathTraversal, fserr.KindInvalidArg, fserr.KindNotADirectory:
		return http.StatusBadRequest
	case fserr.KindNotFound:
		return http.StatusNotFound
	case fserr.KindIsADirectory, fserr.KindAlreadyExists, fserr.KindConflict:
		return http.StatusConflict
	case fserr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case fserr.KindInvalidRange:
		return http.StatusRequestedRangeNotSatisfiable
	case fserr.KindShuttingDown:
		return http.StatusServiceUnavailable
	case fserr.KindCanceled:
		return http.StatusRequestTimeout
	default:
		if fserr.IsNoSpace(err) {
			return StatusInsufficientStorage
		}
		return http.StatusInternalServerError
	}
}

// respondError aborts the request with the mapped status and error body.
// Internal causes are not echoed for I/O failures.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	kind := fserr.KindOf(err)

	msg := err.Error()
	var fe *fserr.Error
	if kind == fserr.KindIOError && errors.As(err, &fe) {
		msg = fe.Op + ": " + string(fe.Kind)
		if status == StatusInsufficientStorage {
			msg += ": no space left on device"
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Kind: string(kind)})
}

// badRequest rejects a malformed request before it reaches the manager
func badRequest(c *gin.Context, op, path, format string, args ...any) {
	respondError(c, fserr.Newf(fserr.KindInvalidArg, op, path, format, args...))
}
