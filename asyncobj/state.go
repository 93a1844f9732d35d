package asyncobj

// State is a discrete position in the Helper lifecycle. Transitions only
// move to a higher state number.
type State int

const (
	// StateUnactivated indicates activation has not yet started.
	StateUnactivated State = iota

	// StateActivating indicates activation has begun but not completed.
	// Shutdown is deferred while in this state. If activation fails the
	// state moves directly to StateShuttingDown.
	StateActivating

	// StateActivated indicates the object activated successfully and has
	// not yet begun shutting down. A shutdown may already be scheduled if
	// shutdown is deferred.
	StateActivated

	// StateShuttingDown indicates shutdown has begun and can no longer be
	// deferred. This state may be entered without ever passing through
	// StateActivating or StateActivated.
	StateShuttingDown

	// StateLocalShutdown indicates the object itself is shut down and the
	// final completion status is available, but registered dependents are
	// still being waited on.
	StateLocalShutdown

	// StateShutDown indicates shutdown is fully complete, dependents
	// included.
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUnactivated:
		return "unactivated"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateShuttingDown:
		return "shutting-down"
	case StateLocalShutdown:
		return "local-shutdown"
	case StateShutDown:
		return "shutdown"
	default:
		return "unknown"
	}
}
