// Package id mints the identifiers the proxy hands out: trace and span ids for
// requests and record ids for the audit log.
//
// Every id is "<prefix>_<ULID>". ULIDs from one Source are strictly
// increasing, even within a millisecond, so record ids double as ordered
// store keys.
package id

import (
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TraceID identifies a single HTTP request end to end
type TraceID string

// SpanID identifies one timed unit of work inside a trace
type SpanID string

// RecordID identifies an audit record
type RecordID string

const (
	TracePrefix  = "trace"
	SpanPrefix   = "span"
	RecordPrefix = "rec"
)

// ErrMalformed is returned for strings that are not "<prefix>_<ULID>"
var ErrMalformed = errors.New("malformed id")

// Source mints monotonic ULIDs. It is safe for concurrent use.
type Source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewSource creates a source reading randomness from entropy. A nil entropy
// uses crypto/rand; a nil now uses time.Now.
func NewSource(entropy io.Reader, now func() time.Time) *Source {
	if entropy == nil {
		entropy = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &Source{entropy: ulid.Monotonic(entropy, 0), now: now}
}

var (
	defaultSource *Source
	defaultOnce   sync.Once
)

func std() *Source {
	defaultOnce.Do(func() {
		defaultSource = NewSource(nil, nil)
	})
	return defaultSource
}

// Next returns "<prefix>_<ULID>"
func (s *Source) Next(prefix string) string {
	s.mu.Lock()
	u := ulid.MustNew(ulid.Timestamp(s.now()), s.entropy)
	s.mu.Unlock()
	return prefix + "_" + u.String()
}

func NewTraceID() TraceID   { return TraceID(std().Next(TracePrefix)) }
func NewSpanID() SpanID     { return SpanID(std().Next(SpanPrefix)) }
func NewRecordID() RecordID { return RecordID(std().Next(RecordPrefix)) }

func (id TraceID) String() string  { return string(id) }
func (id SpanID) String() string   { return string(id) }
func (id RecordID) String() string { return string(id) }

// Split separates an id into its prefix and ULID
func Split(s string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(s, "_")
	if !ok || prefix == "" {
		return "", ulid.ULID{}, ErrMalformed
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return "", ulid.ULID{}, ErrMalformed
	}
	return prefix, u, nil
}
