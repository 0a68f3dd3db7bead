// Package audit records every mediated file operation.
//
// Components:
//   - Recorder: bounded queue drained by one background worker
//   - Store: persistence backends selected by a DSN
//   - BadgerStore: embedded key-value store, records encoded with sonic
//   - SQLiteStore: audit_log table in a SQLite file
//   - MemoryStore: ring buffer for development and tests
//
// Recording is fire-and-forget. A full queue drops the record, a failing
// store is guarded by a circuit breaker, and neither ever fails the
// operation being recorded.
//
// Example Usage:
//
//	store, err := audit.OpenStore("badger:///var/lib/fs-proxy/audit")
//	rec := audit.NewRecorder(store, audit.Options{QueueSize: 1024}, logger)
//	rec.Record(audit.FromResult(result, traceID))
//	defer rec.Close(ctx)
package audit
