// Package broker defines the durable queue and result-store contract that
// coordinates job submission and consumption, along with Redis-backed and
// in-memory implementations. The broker is the only shared state between the
// submission path, the status tracker, and the workers.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/prophet/internal/model"
)

// ErrInvalidTransition is returned when a job state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// Broker coordinates pending jobs and published results.
//
// State writes enforce the one-directional lifecycle: transitions that would
// regress or skip a state are rejected with ErrInvalidTransition, and
// progress percentages never decrease across successive writes.
type Broker interface {
	// Enqueue durably records the job in state pending and adds it to the
	// FIFO queue. Returns before any work on the job begins.
	Enqueue(ctx context.Context, job *model.Job) error

	// Dequeue removes and returns the oldest pending job, blocking up to
	// timeout. Returns ok=false when the queue stayed empty.
	Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, bool, error)

	// GetJob returns a snapshot of the job, or model.ErrJobNotFound when the
	// id is unknown or the result has expired.
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// SetState transitions the job to the given state.
	SetState(ctx context.Context, id, state string) error

	// SetProgress records a progress snapshot, transitioning the job to the
	// progress state. Percent values below the last recorded one are clamped
	// so that polled progress is non-decreasing.
	SetProgress(ctx context.Context, id string, p model.Progress) error

	// SetResult records the terminal result and state (succeeded or failed)
	// and schedules the job record for expiry after the result horizon.
	SetResult(ctx context.Context, id, state string, res *model.Result) error

	// Ping verifies the broker is reachable with a round trip.
	Ping(ctx context.Context) error
}
