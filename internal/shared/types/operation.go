package types

import (
	"io"
	"time"
)

// OperationKind identifies a mediated filesystem operation
type OperationKind string

const (
	OpRead  OperationKind = "read"
	OpWrite OperationKind = "write"
	OpList  OperationKind = "list"
)

// WriteMode controls how a write treats an existing target
type WriteMode int

const (
	// CreateOrTruncate replaces the target if it exists
	CreateOrTruncate WriteMode = iota
	// CreateOnly fails with AlreadyExists if the target exists
	CreateOnly
)

// String returns the string representation of the mode
func (m WriteMode) String() string {
	switch m {
	case CreateOrTruncate:
		return "create_or_truncate"
	case CreateOnly:
		return "create_only"
	default:
		return "unknown"
	}
}

// Status is the outcome of an operation
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ByteRange is an inclusive byte range. End < 0 means "to the end of file".
// Suffix ranges ("last N bytes") set Start < 0 and End to N.
type ByteRange struct {
	Start int64
	End   int64
}

// OperationRequest is created per incoming call and consumed once
type OperationRequest struct {
	Kind         OperationKind
	RelativePath string
	Payload      io.Reader  // Write only
	WriteMode    WriteMode  // Write only
	Range        *ByteRange // Read only
	Recursive    bool       // List only
	Pattern      string     // List only
}

// Entry is a single directory listing row
type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
}

// OperationResult is returned to the caller and forwarded to the recorder
type OperationResult struct {
	Kind             OperationKind `json:"kind"`
	Path             string        `json:"path"`
	Status           Status        `json:"status"`
	BytesTransferred int64         `json:"bytes_transferred"`
	ErrorKind        string        `json:"error_kind,omitempty"`
	Entries          []Entry       `json:"entries,omitempty"`
	Created          bool          `json:"created,omitempty"`
	Duration         time.Duration `json:"-"`
}

// OK reports whether the operation succeeded
func (r *OperationResult) OK() bool {
	return r.Status == StatusOK
}
