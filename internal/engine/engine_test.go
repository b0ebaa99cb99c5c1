package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-enhancer/internal/broker"
	"resume-enhancer/internal/gateway"
	"resume-enhancer/internal/ledger"
	"resume-enhancer/pkg/types"
)

// scriptedCompleter answers relevance probes (recognized by their tiny
// max-token setting) and suggestion prompts separately.
type scriptedCompleter struct {
	relevance      string
	relevanceErr   error
	suggestions    string
	suggestionsErr error
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, opts gateway.Options) (string, error) {
	if opts.MaxOutputTokens == 10 {
		return s.relevance, s.relevanceErr
	}
	return s.suggestions, s.suggestionsErr
}

func newEngine(llm gateway.Completer) (*Engine, *ledger.Ledger, *broker.Broker) {
	jobs := ledger.New()
	events := broker.New(jobs)
	e := New(llm, jobs, events, WithStartupDelay(0), WithTeardownGrace(10*time.Millisecond))
	return e, jobs, events
}

func waitTerminal(t *testing.T, jobs *ledger.Ledger, jobID string) ledger.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := jobs.Get(jobID)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	job, err := jobs.Get(jobID)
	require.NoError(t, err)
	return job
}

func points(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Accomplishment number %d with enough text", i+1)
	}
	return out
}

func TestRunProcessesPointsInOrder(t *testing.T) {
	llm := &scriptedCompleter{
		relevance:   "Yes",
		suggestions: "Improved throughput of the billing system by 40%\nLed the billing system rewrite across three teams",
	}
	e, jobs, _ := newEngine(llm)

	input := points(3)
	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, input)
	e.Start("job-1", RunContext{Mode: ModeRole, ContextName: "Backend Engineer", Keywords: "go, grpc"})

	job := waitTerminal(t, jobs, "job-1")
	assert.Equal(t, ledger.StatusDone, job.Status)
	require.Len(t, job.ProcessedPoints, 3)
	for i, result := range job.ProcessedPoints {
		assert.Equal(t, input[i], result.Original)
		assert.True(t, result.IsRelevant)
		assert.True(t, result.IsDefault)
		assert.Len(t, result.Suggestions, 2)
		assert.Empty(t, result.Error)
	}
}

func TestRunExactlyFiftyPoints(t *testing.T) {
	llm := &scriptedCompleter{relevance: "yes", suggestions: "A rewritten accomplishment with more impact"}
	e, jobs, _ := newEngine(llm)

	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, points(50))
	e.Start("job-1", RunContext{Mode: ModeRole, ContextName: "SRE", Keywords: "k8s"})

	job := waitTerminal(t, jobs, "job-1")
	require.Len(t, job.ProcessedPoints, 50)
	for _, result := range job.ProcessedPoints {
		assert.NotContains(t, result.Suggestions, "Processing limit reached.")
	}
}

func TestRunFiftyOnePointsHitsLimit(t *testing.T) {
	llm := &scriptedCompleter{relevance: "yes", suggestions: "A rewritten accomplishment with more impact"}
	e, jobs, _ := newEngine(llm)

	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, points(51))
	e.Start("job-1", RunContext{Mode: ModeRole, ContextName: "SRE", Keywords: "k8s"})

	job := waitTerminal(t, jobs, "job-1")
	assert.Equal(t, ledger.StatusDone, job.Status)
	require.Len(t, job.ProcessedPoints, 51)
	last := job.ProcessedPoints[50]
	assert.Equal(t, []string{"Processing limit reached."}, last.Suggestions)
	assert.False(t, last.IsDefault)
}

func TestRunZeroPoints(t *testing.T) {
	e, jobs, events := newEngine(&scriptedCompleter{})

	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, nil)
	ch, cancel := events.Subscribe("job-1")
	defer cancel()

	e.Start("job-1", RunContext{Mode: ModeRole, ContextName: "SRE"})

	job := waitTerminal(t, jobs, "job-1")
	assert.Equal(t, ledger.StatusDone, job.Status)
	assert.Empty(t, job.ProcessedPoints)

	var done types.Event
	require.Eventually(t, func() bool {
		select {
		case ev := <-ch:
			if ev.Type == types.EventDone {
				done = ev
				return true
			}
		default:
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Processing complete. 0 points processed.", done.Payload.(types.MessagePayload).Message)
}

func TestBlockedSuggestionsYieldPlaceholder(t *testing.T) {
	llm := &scriptedCompleter{
		relevance:      "yes",
		suggestionsErr: &gateway.BlockedError{Reason: "SAFETY"},
	}
	e, jobs, _ := newEngine(llm)

	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, points(1))
	e.Start("job-1", RunContext{Mode: ModeRole, ContextName: "SRE"})

	job := waitTerminal(t, jobs, "job-1")
	assert.Equal(t, ledger.StatusDone, job.Status)
	require.Len(t, job.ProcessedPoints, 1)
	result := job.ProcessedPoints[0]
	assert.Equal(t, "Suggestion generation failed or blocked.", result.Error)
	assert.Equal(t, []string{"Could not generate suggestions for this point."}, result.Suggestions)
	assert.False(t, result.IsDefault)
}

func TestBlockedRelevanceIsNotRelevant(t *testing.T) {
	llm := &scriptedCompleter{
		relevanceErr: &gateway.BlockedError{Reason: "SAFETY"},
		suggestions:  "A rewritten accomplishment with more impact",
	}
	e, jobs, _ := newEngine(llm)

	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, points(1))
	e.Start("job-1", RunContext{Mode: ModeJD, ContextName: "posting", JDSummary: "summary"})

	job := waitTerminal(t, jobs, "job-1")
	require.Len(t, job.ProcessedPoints, 1)
	assert.False(t, job.ProcessedPoints[0].IsRelevant)
	assert.Empty(t, job.ProcessedPoints[0].Error)
}

func TestAllSuggestionsFilteredOut(t *testing.T) {
	original := "Accomplishment number 1 with enough text"
	llm := &scriptedCompleter{
		relevance:   "yes",
		suggestions: "- short\n" + original + "\n  " + original + "  ",
	}
	e, jobs, _ := newEngine(llm)

	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, points(1))
	e.Start("job-1", RunContext{Mode: ModeRole, ContextName: "SRE"})

	job := waitTerminal(t, jobs, "job-1")
	require.Len(t, job.ProcessedPoints, 1)
	result := job.ProcessedPoints[0]
	assert.Equal(t, []string{"Could not generate valid suggestions for this point."}, result.Suggestions)
	assert.Empty(t, result.Error)
	assert.True(t, result.IsDefault)
}

func TestClientDisconnectAbortsRun(t *testing.T) {
	llm := &scriptedCompleter{relevance: "yes", suggestions: "A rewritten accomplishment with more impact"}
	jobs := ledger.New()
	events := broker.New(jobs)
	e := New(llm, jobs, events, WithStartupDelay(50*time.Millisecond), WithTeardownGrace(10*time.Millisecond))

	jobs.Create("job-1", &types.StructuredResume{Name: "Ada"}, points(5))

	_, cancel := events.Subscribe("job-1")
	cancel()

	e.Start("job-1", RunContext{Mode: ModeRole, ContextName: "SRE"})

	job := waitTerminal(t, jobs, "job-1")
	assert.Equal(t, ledger.StatusAborted, job.Status)
	assert.Empty(t, job.ProcessedPoints)
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		original string
		want     []string
	}{
		{
			name: "strips bullet markers and caps at two",
			raw:  "- First rewritten version here\n* Second rewritten version here\n• Third rewritten version here",
			want: []string{"First rewritten version here", "Second rewritten version here"},
		},
		{
			name: "drops short fragments",
			raw:  "ok\nA real suggestion line here",
			want: []string{"A real suggestion line here"},
		},
		{
			name:     "drops case-insensitive echo of original",
			raw:      "LED THE MIGRATION OF THE STACK\nSomething genuinely different here",
			original: "Led the migration of the stack",
			want:     []string{"Something genuinely different here"},
		},
		{
			name: "empty response yields placeholder",
			raw:  "\n\n",
			want: []string{"Could not generate valid suggestions for this point."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSuggestions(tt.raw, tt.original))
		})
	}
}
