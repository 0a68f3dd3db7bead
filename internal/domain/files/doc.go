// Package files ties the sandbox, the path lock table, the executor and the
// audit recorder into one mediation service.
//
// Every operation follows the same pipeline:
//  1. Resolve the client path inside the sandbox
//  2. Acquire the path lock (read for Read/List/Stat, write for Write)
//  3. Run the executor operation
//  4. Release the lock
//  5. Record the result (metrics, log, audit) without blocking
//
// Reads are streamed: the lock stays held until the Download is closed.
//
// Example Usage:
//
//	mgr := files.NewManager(exec, table, recorder, metrics, logger)
//	res, err := mgr.Write(ctx, "notes/a.txt", body, types.CreateOrTruncate)
//	dl, err := mgr.Read(ctx, "notes/a.txt", nil)
//	defer dl.Close()
package files
