package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seantiz/prophet/internal/model"
)

// queueCapacity bounds the number of jobs waiting in the in-memory queue.
const queueCapacity = 1024

// Compile-time interface satisfaction check.
var _ Broker = (*Memory)(nil)

// Memory is an in-process Broker with the same semantics as the Redis
// implementation. Used for tests and single-binary deployments.
type Memory struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	pending   chan string
	resultTTL time.Duration
	now       func() time.Time
}

// NewMemory creates an in-memory broker whose terminal results expire after
// resultTTL.
func NewMemory(resultTTL time.Duration) *Memory {
	return &Memory{
		jobs:      make(map[string]*model.Job),
		pending:   make(chan string, queueCapacity),
		resultTTL: resultTTL,
		now:       time.Now,
	}
}

func (m *Memory) Enqueue(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	if _, exists := m.jobs[job.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("job %s already enqueued", job.ID)
	}
	stored := *job
	m.jobs[job.ID] = &stored
	m.mu.Unlock()

	select {
	case m.pending <- job.ID:
		return nil
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return fmt.Errorf("queue full: %w", model.ErrBrokerUnavailable)
	}
}

func (m *Memory) Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-m.pending:
		job, err := m.GetJob(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return job, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (m *Memory) GetJob(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	if job.ExpiresAt != nil && m.now().After(*job.ExpiresAt) {
		delete(m.jobs, id)
		return nil, model.ErrJobNotFound
	}

	snapshot := *job
	return &snapshot, nil
}

func (m *Memory) SetState(_ context.Context, id, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(id, state)
}

func (m *Memory) SetProgress(_ context.Context, id string, p model.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return model.ErrJobNotFound
	}
	if err := m.transition(id, model.StateProgress); err != nil {
		return err
	}
	job.Progress = clampProgress(job.Progress, p)
	return nil
}

func (m *Memory) SetResult(_ context.Context, id, state string, res *model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return model.ErrJobNotFound
	}
	if err := m.transition(id, state); err != nil {
		return err
	}
	job.Result = res
	expires := m.now().Add(m.resultTTL)
	job.ExpiresAt = &expires

	m.sweepExpired()
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

// sweepExpired drops job records past their expiry under m.mu. Terminal
// records would otherwise linger for the process lifetime when nobody polls
// them again; Redis handles the same horizon with a key TTL.
func (m *Memory) sweepExpired() {
	now := m.now()
	for id, job := range m.jobs {
		if job.ExpiresAt != nil && now.After(*job.ExpiresAt) {
			delete(m.jobs, id)
		}
	}
}

// transition applies a state change under m.mu, enforcing the lifecycle.
func (m *Memory) transition(id, state string) error {
	job, ok := m.jobs[id]
	if !ok {
		return model.ErrJobNotFound
	}
	if !model.ValidTransition(job.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, state)
	}
	job.State = state
	return nil
}

// clampProgress keeps the reported percent non-decreasing across writes.
func clampProgress(prev *model.Progress, next model.Progress) *model.Progress {
	if next.Percent > 100 {
		next.Percent = 100
	}
	if next.Percent < 0 {
		next.Percent = 0
	}
	if prev != nil && next.Percent < prev.Percent {
		next.Percent = prev.Percent
		next.Current = prev.Current
	}
	return &next
}
