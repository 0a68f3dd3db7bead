package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the dependency while the breaker is open
// or while its single probe call is in flight.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero values get defaults.
type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker (default 5)
	Threshold int
	// Cooldown is how long the breaker stays open before one probe call (default 30s)
	Cooldown time.Duration
	// CallTimeout bounds each call; 0 leaves the caller's deadline alone
	CallTimeout time.Duration
	// OnStateChange is called with the breaker lock released
	OnStateChange func(name string, from, to State)
	// Now is the clock; tests replace it
	Now func() time.Time
}

// Snapshot is a point-in-time view for health reporting
type Snapshot struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Calls               uint64     `json:"calls"`
	Failures            uint64     `json:"failures"`
	Rejected            uint64     `json:"rejected"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// Breaker guards calls to a dependency that may be down for a while. After
// Threshold consecutive failures it rejects calls for Cooldown, then lets a
// single probe through: success closes it, failure reopens it.
type Breaker struct {
	name     string
	settings Settings

	mu          sync.Mutex
	state       State
	consecutive int
	openedAt    time.Time
	probing     bool
	calls       uint64
	failures    uint64
	rejected    uint64
	lastErr     error
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Breaker{name: name, settings: settings}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An open breaker whose cooldown has
// passed reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Snapshot returns the state and counters together
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Name:                b.name,
		State:               b.current().String(),
		ConsecutiveFailures: b.consecutive,
		Calls:               b.calls,
		Failures:            b.failures,
		Rejected:            b.rejected,
	}
	if !b.openedAt.IsZero() {
		at := b.openedAt
		snap.OpenedAt = &at
	}
	if b.lastErr != nil {
		snap.LastError = b.lastErr.Error()
	}
	return snap
}

// Call runs fn unless the breaker rejects it with ErrOpen. fn receives ctx
// bounded by CallTimeout. A panic in fn counts as a failure and is re-raised.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	if b.settings.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.settings.CallTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			b.settle(probe, errors.New("panic"))
			panic(p)
		}
		b.settle(probe, err)
	}()
	return fn(ctx)
}

// current must be called with mu held
func (b *Breaker) current() State {
	if b.state == StateOpen && !b.settings.Now().Before(b.openedAt.Add(b.settings.Cooldown)) {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateOpen:
		b.rejected++
		return false, ErrOpen
	case StateHalfOpen:
		if b.probing {
			b.rejected++
			return false, ErrOpen
		}
		b.probing = true
		b.calls++
		return true, nil
	default:
		b.calls++
		return false, nil
	}
}

func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	from := b.current()
	if probe {
		b.probing = false
	}

	if err == nil {
		b.consecutive = 0
		if probe {
			b.state = StateClosed
			b.openedAt = time.Time{}
		}
	} else {
		b.failures++
		b.consecutive++
		b.lastErr = err
		if probe || b.consecutive >= b.settings.Threshold {
			b.state = StateOpen
			b.openedAt = b.settings.Now()
		}
	}

	to := b.current()
	notify := b.settings.OnStateChange
	b.mu.Unlock()

	if notify != nil && from != to {
		notify(b.name, from, to)
	}
}
