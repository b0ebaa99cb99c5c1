package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-enhancer/pkg/types"
)

func TestLifecycle(t *testing.T) {
	l := New()
	l.Create("job-1", &types.StructuredResume{Name: "Ada"}, []string{"point one here"})

	job, err := l.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, []string{"point one here"}, job.PendingPoints)

	require.NoError(t, l.SetStatus("job-1", StatusProcessing))
	require.NoError(t, l.Append("job-1", types.PointResult{Original: "point one here", Suggestions: []string{"better point"}}))
	require.NoError(t, l.SetStatus("job-1", StatusDone))

	job, err = l.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, job.Status)
	assert.Len(t, job.ProcessedPoints, 1)
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
	}{
		{"pending to done", StatusPending, StatusDone},
		{"done to processing", StatusDone, StatusProcessing},
		{"error to done", StatusError, StatusDone},
		{"aborted to processing", StatusAborted, StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, canTransition(tt.from, tt.to))
		})
	}
}

func TestSetStatusRejectsInvalid(t *testing.T) {
	l := New()
	l.Create("job-1", &types.StructuredResume{Name: "Ada"}, nil)

	require.NoError(t, l.SetStatus("job-1", StatusProcessing))
	require.NoError(t, l.SetStatus("job-1", StatusDone))

	err := l.SetStatus("job-1", StatusProcessing)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusDone, invalid.From)
}

func TestAppendAfterTerminal(t *testing.T) {
	l := New()
	l.Create("job-1", &types.StructuredResume{Name: "Ada"}, nil)
	require.NoError(t, l.SetStatus("job-1", StatusProcessing))
	require.NoError(t, l.SetStatus("job-1", StatusDone))

	err := l.Append("job-1", types.PointResult{Original: "late"})
	var invalid *InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestSetError(t *testing.T) {
	l := New()
	l.Create("job-1", &types.StructuredResume{Name: "Ada"}, nil)
	require.NoError(t, l.SetStatus("job-1", StatusProcessing))
	require.NoError(t, l.SetError("job-1", "model unavailable"))

	job, err := l.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, "model unavailable", job.ErrorMessage)
}

func TestRetentionGC(t *testing.T) {
	l := New().WithRetention(20 * time.Millisecond)
	l.Create("job-1", &types.StructuredResume{Name: "Ada"}, nil)
	require.NoError(t, l.SetStatus("job-1", StatusProcessing))
	require.NoError(t, l.SetStatus("job-1", StatusDone))

	assert.Eventually(t, func() bool {
		_, err := l.Get("job-1")
		return err == ErrNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestGetUnknown(t *testing.T) {
	_, err := New().Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotIsolation(t *testing.T) {
	l := New()
	l.Create("job-1", &types.StructuredResume{Name: "Ada"}, nil)
	require.NoError(t, l.SetStatus("job-1", StatusProcessing))
	require.NoError(t, l.Append("job-1", types.PointResult{Original: "one"}))

	snap, err := l.Get("job-1")
	require.NoError(t, err)

	require.NoError(t, l.Append("job-1", types.PointResult{Original: "two"}))
	assert.Len(t, snap.ProcessedPoints, 1)
}
