// Package types provides shared data structures for the file proxy.
//
// Core Types:
//   - OperationRequest: a single read, write or list call
//   - OperationResult: outcome returned to the caller and audited
//   - Entry: one row of a directory listing
//
// Options:
//   - WriteMode: CreateOrTruncate or CreateOnly
//   - ByteRange: optional range for reads
//
// Example Usage:
//
//	req := types.OperationRequest{
//	    Kind:         types.OpWrite,
//	    RelativePath: "notes/a.txt",
//	    Payload:      strings.NewReader("hello"),
//	    WriteMode:    types.CreateOnly,
//	}
package types
