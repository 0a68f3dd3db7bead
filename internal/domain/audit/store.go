package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDisabled is returned when no audit store is configured
var ErrDisabled = errors.New("audit recording is disabled")

// Store persists audit records. Implementations must be safe for concurrent
// use; the recorder calls Append from a single goroutine.
type Store interface {
	// Append persists rec. The record is durable once Append returns nil.
	Append(ctx context.Context, rec Record) error
	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// OpenStore opens the store named by dsn:
//
//	badger:///var/lib/fs-proxy/audit
//	sqlite:///var/lib/fs-proxy/audit.db
//	memory://
//
// An empty dsn returns (nil, nil): recording is disabled.
func OpenStore(dsn string) (Store, error) {
	if dsn == "" {
		return nil, nil
	}

	scheme, location, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("invalid metadata DSN %q: missing scheme", dsn)
	}

	switch scheme {
	case "memory":
		return NewMemoryStore(DefaultMemoryCapacity), nil
	case "badger":
		if location == "" {
			return nil, fmt.Errorf("invalid metadata DSN %q: missing directory", dsn)
		}
		return OpenBadgerStore(location)
	case "sqlite", "sqlite3":
		if location == "" {
			return nil, fmt.Errorf("invalid metadata DSN %q: missing file", dsn)
		}
		return OpenSQLiteStore(location)
	default:
		return nil, fmt.Errorf("unsupported metadata store %q", scheme)
	}
}
