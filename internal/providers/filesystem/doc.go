// Package filesystem performs file operations inside a single sandbox root.
//
// The package is organized into:
//   - paths: the Sandbox and path resolution (traversal and symlink rejection)
//   - basic: streaming reads, atomic writes and stat
//   - directory: shallow and recursive listings
//   - pool: the bounded worker pool all blocking I/O runs on
//
// All access goes through an os.Root opened on the sandbox directory, so a
// path can never leave the root even if the tree changes after resolution.
// Writes are staged in a hidden temp file next to the target and committed
// with a rename (or a link for create-only writes).
//
// Callers are expected to serialize access per path; see the pathlock
// package.
//
// Example Usage:
//
//	sb, err := filesystem.NewSandbox("/srv/data")
//	exec := filesystem.NewExecutor(sb, filesystem.Options{}, logger)
//	p, err := sb.Resolve("notes/a.txt")
//	res, err := exec.Write(ctx, p, body, types.CreateOrTruncate)
package filesystem
