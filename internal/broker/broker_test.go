package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-enhancer/internal/ledger"
	"resume-enhancer/pkg/types"
)

func drain(ch <-chan types.Event) []types.Event {
	var events []types.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(100 * time.Millisecond):
			return events
		}
	}
}

func newJob(t *testing.T, l *ledger.Ledger, id string, results ...types.PointResult) {
	t.Helper()
	l.Create(id, &types.StructuredResume{Name: "Ada"}, []string{"a point long enough"})
	require.NoError(t, l.SetStatus(id, ledger.StatusProcessing))
	for _, r := range results {
		require.NoError(t, l.Append(id, r))
	}
}

func TestSubscribeLiveDelivery(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1")

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish("job-1", types.Event{Type: types.EventProgress, Payload: types.ProgressPayload{Current: 1, Total: 1}})

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventConnected, events[0].Type)
	assert.Equal(t, types.EventProgress, events[1].Type)
}

func TestSubscribeReplaysProcessedPoints(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1",
		types.PointResult{Original: "first"},
		types.PointResult{Original: "second"},
	)

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	events := drain(ch)
	require.Len(t, events, 3)
	assert.Equal(t, types.EventConnected, events[0].Type)
	assert.Equal(t, "first", events[1].Payload.(types.PointResult).Original)
	assert.Equal(t, "second", events[2].Payload.(types.PointResult).Original)
}

func TestSubscribeDoneJobClosesAfterReplay(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1", types.PointResult{Original: "first"})
	require.NoError(t, l.SetStatus("job-1", ledger.StatusDone))

	replayed := func() []types.Event {
		ch, cancel := b.Subscribe("job-1")
		defer cancel()
		return drain(ch)
	}

	first := replayed()
	second := replayed()

	require.Len(t, first, 3)
	assert.Equal(t, types.EventConnected, first[0].Type)
	assert.Equal(t, types.EventPointProcessed, first[1].Type)
	assert.Equal(t, types.EventDone, first[2].Type)
	assert.Equal(t, "Processing complete. 1 points processed.",
		first[2].Payload.(types.MessagePayload).Message)

	// Subscribing again yields the same sequence.
	assert.Equal(t, first, second)
}

func TestSubscribeErrorJob(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1")
	require.NoError(t, l.SetError("job-1", "model unavailable"))

	ch, _ := b.Subscribe("job-1")
	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventError, events[1].Type)
	assert.Equal(t, "model unavailable", events[1].Payload.(types.MessagePayload).Message)
}

func TestPublishWithoutSubscriberIsNoop(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1")

	b.Publish("job-1", types.Event{Type: types.EventProgress})
	assert.False(t, b.Cancelled("job-1"))
}

func TestCancelMarksJobCancelled(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1")

	ch, cancel := b.Subscribe("job-1")
	assert.False(t, b.Cancelled("job-1"))
	cancel()
	assert.True(t, b.Cancelled("job-1"))

	_, open := <-ch
	for open {
		_, open = <-ch
	}
}

func TestNewSubscriberReplacesOld(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1")

	oldCh, oldCancel := b.Subscribe("job-1")
	newCh, newCancel := b.Subscribe("job-1")
	defer newCancel()

	// Old channel is closed; its cancel no longer marks the job cancelled.
	drain(oldCh)
	oldCancel()
	assert.False(t, b.Cancelled("job-1"))

	b.Publish("job-1", types.Event{Type: types.EventProgress})
	events := drain(newCh)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventProgress, events[1].Type)
}

func TestCloseAfter(t *testing.T) {
	l := ledger.New()
	b := New(l)
	newJob(t, l, "job-1")

	ch, _ := b.Subscribe("job-1")
	b.CloseAfter("job-1", 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
