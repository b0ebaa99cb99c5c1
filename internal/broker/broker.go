package broker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"resume-enhancer/internal/ledger"
	"resume-enhancer/pkg/types"
)

// channelBuffer is sized for the replay burst: the point ceiling plus the
// greeting and a terminal event, with headroom.
const channelBuffer = 64

// Broker manages one push channel per job. One subscriber per job: a new
// subscription closes and replaces the previous one. Replay comes from the
// job ledger, so a late subscriber always converges on the same view as one
// that watched live.
type Broker struct {
	mu        sync.Mutex
	jobs      *ledger.Ledger
	subs      map[string]chan types.Event
	cancelled map[string]bool
}

func New(jobs *ledger.Ledger) *Broker {
	return &Broker{
		jobs:      jobs,
		subs:      make(map[string]chan types.Event),
		cancelled: make(map[string]bool),
	}
}

// Subscribe attaches to a job's stream. The returned channel first carries a
// connected greeting and a replay of every result recorded so far; if the job
// already reached a terminal status the matching terminal event follows and
// the channel is closed. The returned func detaches the subscriber and marks
// the job cancelled so the engine can abort between points.
func (b *Broker) Subscribe(jobID string) (<-chan types.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.subs[jobID]; ok {
		close(prev)
		delete(b.subs, jobID)
		slog.Debug("replaced existing stream subscriber", "job_id", jobID)
	}

	ch := make(chan types.Event, channelBuffer)
	ch <- types.Event{Type: types.EventConnected, Payload: types.MessagePayload{Message: "Connected to enhancement stream."}}

	job, err := b.jobs.Get(jobID)
	if err == nil {
		for _, result := range job.ProcessedPoints {
			ch <- types.Event{Type: types.EventPointProcessed, Payload: result}
		}
		if job.Status.Terminal() {
			ch <- terminalEvent(job)
			close(ch)
			return ch, func() {}
		}
	}

	b.subs[jobID] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if current, ok := b.subs[jobID]; ok && current == ch {
			close(current)
			delete(b.subs, jobID)
			b.cancelled[jobID] = true
		}
	}
	return ch, cancel
}

// Publish delivers an event to the job's subscriber, if any. A full channel
// drops the event rather than blocking the engine; the ledger remains the
// source of truth for replay.
func (b *Broker) Publish(jobID string, event types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[jobID]
	if !ok {
		return
	}
	select {
	case ch <- event:
	default:
		slog.Warn("dropping event for slow subscriber", "job_id", jobID, "type", event.Type)
	}
}

// Cancelled reports whether a subscriber attached to this job and then went
// away. The engine polls this between points.
func (b *Broker) Cancelled(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled[jobID]
}

// CloseAfter tears the job's channel down once the grace period expires,
// giving the subscriber time to drain the terminal event.
func (b *Broker) CloseAfter(jobID string, grace time.Duration) {
	time.AfterFunc(grace, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[jobID]; ok {
			close(ch)
			delete(b.subs, jobID)
		}
		delete(b.cancelled, jobID)
	})
}

func terminalEvent(job ledger.Job) types.Event {
	switch job.Status {
	case ledger.StatusError:
		msg := job.ErrorMessage
		if msg == "" {
			msg = "Processing failed."
		}
		return types.Event{Type: types.EventError, Payload: types.MessagePayload{Message: msg}}
	case ledger.StatusAborted:
		return types.Event{Type: types.EventError, Payload: types.MessagePayload{Message: "Processing aborted."}}
	default:
		return types.Event{
			Type:    types.EventDone,
			Payload: types.MessagePayload{Message: fmt.Sprintf("Processing complete. %d points processed.", len(job.ProcessedPoints))},
		}
	}
}
