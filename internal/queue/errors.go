package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrClosed is wrapped by deliveries refused because the queue stopped.
var ErrClosed = errors.New("queue closed")

// Reason says why a reply was not delivered.
type Reason int

const (
	// ReasonAbandoned: the caller stopped waiting.
	ReasonAbandoned Reason = iota + 1
	// ReasonClosed: the queue was shut down before the entry ran.
	ReasonClosed
	// ReasonWorkerDied: the handler failed and the worker exited.
	ReasonWorkerDied
)

func (r Reason) String() string {
	switch r {
	case ReasonAbandoned:
		return "abandoned"
	case ReasonClosed:
		return "closed"
	case ReasonWorkerDied:
		return "worker died"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// DeliveryError reports a request whose response never reached the caller.
type DeliveryError struct {
	Queue  string
	ID     uuid.UUID
	Reason Reason
	Err    error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("queue %s: entry %s not delivered: %s", e.Queue, e.ID, e.Reason)
	if e.ID == uuid.Nil {
		msg = fmt.Sprintf("queue %s: request not accepted: %s", e.Queue, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error { return e.Err }
