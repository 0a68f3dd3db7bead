/*
Package resilience provides a circuit breaker for dependencies that may be
unavailable for a while, such as the audit store.

# Usage

	breaker := resilience.New("audit-store", resilience.Settings{
		Threshold:   5,
		Cooldown:    30 * time.Second,
		CallTimeout: 5 * time.Second,
	})

	err := breaker.Call(ctx, func(ctx context.Context) error {
		return store.Append(ctx, rec)
	})
	if errors.Is(err, resilience.ErrOpen) {
		// skipped, store is considered down
	}

# States

	Closed --[Threshold failures]--> Open --[Cooldown]--> Half-Open
	Half-Open --[probe ok]--> Closed
	Half-Open --[probe failed]--> Open

Only one probe runs at a time; other calls are rejected until it settles.
*/
package resilience
