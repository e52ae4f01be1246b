package contracts

import (
	"errors"
	"fmt"
)

// Errors surfaced by bus operations.
var (
	// ErrQueueFull indicates a priority lane is at capacity. Producers
	// should back off or escalate priority.
	ErrQueueFull = errors.New("agentbus: queue full")

	// ErrRequestTimeout indicates a request/reply deadline elapsed before a
	// reply arrived.
	ErrRequestTimeout = errors.New("agentbus: request timeout")

	// ErrBusClosed indicates an operation on a bus that is not running.
	ErrBusClosed = errors.New("agentbus: bus closed")

	// ErrExpiredMessage indicates an envelope's TTL elapsed before delivery.
	ErrExpiredMessage = errors.New("agentbus: message expired")

	// ErrMaxRetriesExceeded indicates delivery was abandoned after the
	// configured retry budget.
	ErrMaxRetriesExceeded = errors.New("agentbus: max retries exceeded")

	// ErrAckTimeout indicates a delivered envelope was never acknowledged
	// within the ack window.
	ErrAckTimeout = errors.New("agentbus: acknowledgment timeout")

	// ErrUnknownRecipient indicates no handler is registered for the
	// envelope's recipient.
	ErrUnknownRecipient = errors.New("agentbus: unknown recipient")

	// ErrInvalidTransition indicates an illegal delivery-status transition.
	ErrInvalidTransition = errors.New("agentbus: invalid status transition")
)

// PersistenceError wraps a store failure. Persistence is best-effort: these
// are logged and counted but never block delivery.
type PersistenceError struct {
	Op         string
	EnvelopeID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("agentbus: persistence %s failed for envelope %s: %v", e.Op, e.EnvelopeID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
