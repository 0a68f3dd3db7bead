package audit

import (
	"time"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/id"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

// Record is the durable form of an operation result
type Record struct {
	ID         string              `json:"id"`
	TraceID    string              `json:"trace_id,omitempty"`
	Op         types.OperationKind `json:"op"`
	Path       string              `json:"path"`
	Status     types.Status        `json:"status"`
	ErrorKind  string              `json:"error_kind,omitempty"`
	Bytes      int64               `json:"bytes"`
	DurationMS int64               `json:"duration_ms"`
	Timestamp  time.Time           `json:"timestamp"`
}

// FromResult builds a record for a finished operation
func FromResult(res *types.OperationResult, traceID string) Record {
	return Record{
		ID:         id.NewRecordID().String(),
		TraceID:    traceID,
		Op:         res.Kind,
		Path:       res.Path,
		Status:     res.Status,
		ErrorKind:  res.ErrorKind,
		Bytes:      res.BytesTransferred,
		DurationMS: res.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}
