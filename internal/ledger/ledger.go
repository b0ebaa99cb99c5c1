package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"resume-enhancer/pkg/types"
)

// defaultRetention is how long a finished job stays queryable before it is
// garbage collected.
const defaultRetention = 30 * time.Minute

var ErrNotFound = errors.New("job not found")

type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusDone
	StatusError
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusAborted
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job status transition %s -> %s", e.From, e.To)
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusError || to == StatusAborted
	case StatusProcessing:
		return to.Terminal()
	default:
		return false
	}
}

// Job is the ledger's record of one enhancement run. ProcessedPoints is
// append-only; results are never mutated once recorded.
type Job struct {
	ID              string
	Resume          *types.StructuredResume
	PendingPoints   []string
	ProcessedPoints []types.PointResult
	Status          Status
	ErrorMessage    string
	CreatedAt       time.Time
}

// Ledger tracks enhancement jobs in memory.
type Ledger struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention time.Duration
}

func New() *Ledger {
	return &Ledger{
		jobs:      make(map[string]*Job),
		retention: defaultRetention,
	}
}

// WithRetention overrides the post-completion retention window.
func (l *Ledger) WithRetention(d time.Duration) *Ledger {
	l.retention = d
	return l
}

func (l *Ledger) Create(id string, resume *types.StructuredResume, points []string) *Job {
	l.mu.Lock()
	defer l.mu.Unlock()

	job := &Job{
		ID:            id,
		Resume:        resume,
		PendingPoints: points,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
	l.jobs[id] = job
	return job
}

// Get returns a snapshot of the job. The ProcessedPoints slice is copied so
// callers can iterate it without holding the ledger's lock.
func (l *Ledger) Get(id string) (Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	job, ok := l.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}

	snapshot := *job
	snapshot.ProcessedPoints = append([]types.PointResult(nil), job.ProcessedPoints...)
	return snapshot, nil
}

// Append records one more point result on a job still in flight.
func (l *Ledger) Append(id string, result types.PointResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return &InvalidTransitionError{From: job.Status, To: job.Status}
	}
	job.ProcessedPoints = append(job.ProcessedPoints, result)
	return nil
}

// SetStatus applies a validated status transition. Reaching a terminal status
// arms the retention timer that eventually removes the job.
func (l *Ledger) SetStatus(id string, to Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !canTransition(job.Status, to) {
		return &InvalidTransitionError{From: job.Status, To: to}
	}
	job.Status = to

	if to.Terminal() {
		time.AfterFunc(l.retention, func() {
			l.mu.Lock()
			delete(l.jobs, id)
			l.mu.Unlock()
		})
	}
	return nil
}

// SetError moves the job to the error status and records the message.
func (l *Ledger) SetError(id, message string) error {
	if err := l.SetStatus(id, StatusError); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if job, ok := l.jobs[id]; ok {
		job.ErrorMessage = message
	}
	return nil
}
