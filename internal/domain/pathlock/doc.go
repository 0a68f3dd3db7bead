// Package pathlock provides a table of per-path readers-writer locks.
//
// Each key (a resolved relative path) gets its own lock with a single FIFO
// wait queue. Any number of readers may hold a key at once; a writer holds it
// exclusively. Requests are granted strictly in arrival order: a reader that
// arrives behind a waiting writer waits for that writer.
//
// Entries are created on first use and removed when the last holder or
// waiter leaves, so the table only grows with the number of paths being
// touched right now.
//
// Example Usage:
//
//	table := pathlock.NewTable(pathlock.Options{Timeout: 30 * time.Second})
//	err := table.WithLock(ctx, "notes/a.txt", pathlock.Write, func() error {
//	    return writeFile()
//	})
package pathlock
