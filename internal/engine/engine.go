package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resume-enhancer/internal/broker"
	"resume-enhancer/internal/gateway"
	"resume-enhancer/internal/ledger"
	"resume-enhancer/pkg/types"
)

// MaxPoints caps how many accomplishment points a single job will enhance.
const MaxPoints = 50

const (
	defaultStartupDelay  = 200 * time.Millisecond
	defaultTeardownGrace = 5 * time.Second
)

const (
	limitPlaceholder       = "Processing limit reached."
	noSuggestionsMessage   = "Could not generate suggestions for this point."
	filteredOutPlaceholder = "Could not generate valid suggestions for this point."
	blockedErrorMessage    = "Suggestion generation failed or blocked."
)

// Relevance context truncation limits keep the per-point prompts small.
const (
	relevanceContextLimit = 1500
	jdKeywordsLimit       = 500
	suggestKeywordsLimit  = 1000
)

const maxSuggestions = 2

type Mode string

const (
	ModeRole Mode = "role"
	ModeJD   Mode = "jd"
)

// RunContext carries the target the resume is being tailored towards: either
// a role (aggregated keywords) or a single analyzed job description.
type RunContext struct {
	Mode        Mode
	ContextName string
	Keywords    string
	JDSummary   string
}

type Option func(*Engine)

func WithStartupDelay(d time.Duration) Option {
	return func(e *Engine) { e.startupDelay = d }
}

func WithTeardownGrace(d time.Duration) Option {
	return func(e *Engine) { e.teardownGrace = d }
}

// Engine runs the per-point enhancement loop for a job: relevance check,
// suggestion generation, result recording and event publication, strictly in
// input order.
type Engine struct {
	llm           gateway.Completer
	jobs          *ledger.Ledger
	events        *broker.Broker
	startupDelay  time.Duration
	teardownGrace time.Duration
}

func New(llm gateway.Completer, jobs *ledger.Ledger, events *broker.Broker, opts ...Option) *Engine {
	e := &Engine{
		llm:           llm,
		jobs:          jobs,
		events:        events,
		startupDelay:  defaultStartupDelay,
		teardownGrace: defaultTeardownGrace,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the enhancement run in the background. The short startup
// delay gives the client a window to attach its stream before the first event.
func (e *Engine) Start(jobID string, rc RunContext) {
	go e.run(context.Background(), jobID, rc)
}

func (e *Engine) run(ctx context.Context, jobID string, rc RunContext) {
	time.Sleep(e.startupDelay)

	job, err := e.jobs.Get(jobID)
	if err != nil {
		slog.Error("enhancement job vanished before start", "job_id", jobID)
		return
	}
	if err := e.jobs.SetStatus(jobID, ledger.StatusProcessing); err != nil {
		slog.Error("could not start enhancement job", "job_id", jobID, "error", err)
		return
	}

	slog.Info("enhancement started", "job_id", jobID, "points", len(job.PendingPoints), "mode", rc.Mode)

	total := len(job.PendingPoints)
	processed := 0
	for i, point := range job.PendingPoints {
		if e.events.Cancelled(jobID) {
			slog.Info("enhancement aborted by client disconnect", "job_id", jobID, "processed", processed)
			if err := e.jobs.SetStatus(jobID, ledger.StatusAborted); err != nil {
				slog.Error("could not mark job aborted", "job_id", jobID, "error", err)
			}
			e.events.CloseAfter(jobID, e.teardownGrace)
			return
		}

		if i >= MaxPoints {
			result := types.PointResult{
				Original:    point,
				Suggestions: []string{limitPlaceholder},
			}
			if err := e.record(jobID, i+1, total, result, false); err != nil {
				e.fail(jobID, err)
				return
			}
			processed++
			break
		}

		result := e.processPoint(ctx, point, rc)
		if err := e.record(jobID, i+1, total, result, true); err != nil {
			e.fail(jobID, err)
			return
		}
		processed++
	}

	if err := e.jobs.SetStatus(jobID, ledger.StatusDone); err != nil {
		slog.Error("could not mark job done", "job_id", jobID, "error", err)
		return
	}
	e.events.Publish(jobID, types.Event{
		Type:    types.EventDone,
		Payload: types.MessagePayload{Message: fmt.Sprintf("Processing complete. %d points processed.", processed)},
	})
	e.events.CloseAfter(jobID, e.teardownGrace)
	slog.Info("enhancement done", "job_id", jobID, "processed", processed)
}

// record publishes progress, appends the result to the ledger, then publishes
// the result. The ledger write happens before the point_processed event so a
// reconnecting client's replay is never behind what it already saw live.
func (e *Engine) record(jobID string, current, total int, result types.PointResult, withProgress bool) error {
	if withProgress {
		e.events.Publish(jobID, types.Event{
			Type: types.EventProgress,
			Payload: types.ProgressPayload{
				Current: current,
				Total:   total,
				Message: fmt.Sprintf("Processing point %d...", current),
			},
		})
	}
	if err := e.jobs.Append(jobID, result); err != nil {
		return err
	}
	e.events.Publish(jobID, types.Event{Type: types.EventPointProcessed, Payload: result})
	return nil
}

// fail marks the whole run failed: engine-level errors (a ledger write
// refusing the result) are terminal, unlike per-point model failures.
func (e *Engine) fail(jobID string, err error) {
	slog.Error("enhancement run failed", "job_id", jobID, "error", err)
	if serr := e.jobs.SetError(jobID, err.Error()); serr != nil {
		slog.Error("could not record job failure", "job_id", jobID, "error", serr)
	}
	e.events.Publish(jobID, types.Event{
		Type:    types.EventError,
		Payload: types.MessagePayload{Message: err.Error()},
	})
	e.events.CloseAfter(jobID, e.teardownGrace)
}

// processPoint produces the result for one accomplishment. Model failures are
// folded into the result; they never abort the run.
func (e *Engine) processPoint(ctx context.Context, point string, rc RunContext) types.PointResult {
	relevant, err := e.checkRelevance(ctx, point, rc)
	if err != nil {
		return types.PointResult{
			Original:    point,
			Suggestions: []string{fmt.Sprintf("Error: %s", err.Error())},
			Error:       err.Error(),
		}
	}

	raw, err := e.llm.Complete(ctx, e.suggestionPrompt(point, relevant, rc), gateway.Options{
		Temperature:     0.7,
		MaxOutputTokens: 512,
	})
	if err != nil {
		var blocked *gateway.BlockedError
		var empty *gateway.EmptyResponseError
		if errors.As(err, &blocked) || errors.As(err, &empty) {
			return types.PointResult{
				Original:    point,
				Suggestions: []string{noSuggestionsMessage},
				IsRelevant:  relevant,
				Error:       blockedErrorMessage,
			}
		}
		return types.PointResult{
			Original:    point,
			Suggestions: []string{fmt.Sprintf("Error: %s", err.Error())},
			IsRelevant:  relevant,
			Error:       err.Error(),
		}
	}

	suggestions := parseSuggestions(raw, point)
	return types.PointResult{
		Original:    point,
		Suggestions: suggestions,
		IsRelevant:  relevant,
		IsDefault:   len(suggestions) > 0,
	}
}

// checkRelevance asks a yes/no question at near-zero temperature. A blocked
// or empty answer counts as "not relevant" rather than an error.
func (e *Engine) checkRelevance(ctx context.Context, point string, rc RunContext) (bool, error) {
	answer, err := e.llm.Complete(ctx, e.relevancePrompt(point, rc), gateway.Options{
		Temperature:     0.1,
		MaxOutputTokens: 10,
	})
	if err != nil {
		var blocked *gateway.BlockedError
		var empty *gateway.EmptyResponseError
		if errors.As(err, &blocked) || errors.As(err, &empty) {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(strings.ToLower(answer), "yes"), nil
}

func (e *Engine) relevancePrompt(point string, rc RunContext) string {
	return fmt.Sprintf(`Target context:
%s

Is the following resume bullet point relevant to this target? Answer with only "yes" or "no".

Bullet point: "%s"`, e.relevanceContext(rc), point)
}

func (e *Engine) relevanceContext(rc RunContext) string {
	if rc.Mode == ModeJD {
		return fmt.Sprintf("Job description summary: %s\nKey skills from the job description: %s",
			truncate(rc.JDSummary, relevanceContextLimit), truncate(rc.Keywords, jdKeywordsLimit))
	}
	return fmt.Sprintf("Common keywords for the target role %q: %s",
		rc.ContextName, truncate(rc.Keywords, relevanceContextLimit))
}

func (e *Engine) suggestionPrompt(point string, relevant bool, rc RunContext) string {
	if relevant {
		return fmt.Sprintf(`You are an expert resume writer. Rewrite the following resume bullet point to be more impactful for the target "%s". Emphasize measurable results and incorporate relevant keywords where natural: %s

Provide up to 2 rewritten versions, one per line. Do not number them or add any other text.

Original bullet point: "%s"`, rc.ContextName, truncate(rc.Keywords, suggestKeywordsLimit), point)
	}
	return fmt.Sprintf(`You are an expert resume writer. Rewrite the following resume bullet point to be clearer and more impactful, emphasizing measurable results.

Provide up to 2 rewritten versions, one per line. Do not number them or add any other text.

Original bullet point: "%s"`, point)
}

// parseSuggestions splits the raw response into candidate lines, strips
// bullet markers, and drops fragments and echoes of the original. All
// candidates filtered out yields a single placeholder.
func parseSuggestions(raw, original string) []string {
	var suggestions []string
	for _, line := range strings.Split(raw, "\n") {
		candidate := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if len(candidate) <= 10 {
			continue
		}
		if strings.EqualFold(candidate, strings.TrimSpace(original)) {
			continue
		}
		suggestions = append(suggestions, candidate)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	if len(suggestions) == 0 {
		return []string{filteredOutPlaceholder}
	}
	return suggestions
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
