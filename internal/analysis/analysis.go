package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"resume-enhancer/internal/extraction"
	"resume-enhancer/internal/gateway"
	"resume-enhancer/internal/store"
	"resume-enhancer/pkg/types"
)

// maxPromptChars caps how much extracted posting text is sent per prompt.
const maxPromptChars = 30000

// Analyzer runs the background analysis of a stored job description:
// extract text, summarize, pull keywords.
type Analyzer struct {
	llm       gateway.Completer
	extractor *extraction.Extractor
	data      *store.Store
}

func New(llm gateway.Completer, extractor *extraction.Extractor, data *store.Store) *Analyzer {
	return &Analyzer{llm: llm, extractor: extractor, data: data}
}

// Run analyzes one job description end to end and records the outcome on the
// stored record. Intended to run as a goroutine behind a 202 response.
func (a *Analyzer) Run(ctx context.Context, jdID string) {
	jd, err := a.data.JD(jdID)
	if err != nil {
		slog.Error("jd analysis: record missing", "jd_id", jdID, "error", err)
		return
	}
	if err := a.data.MarkJDProcessing(jdID); err != nil {
		slog.Error("jd analysis: could not mark processing", "jd_id", jdID, "error", err)
		return
	}

	text, err := a.extract(ctx, jd)
	if err != nil {
		a.fail(jdID, fmt.Sprintf("text extraction failed: %v", err))
		return
	}
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	analysis, err := a.llm.Complete(ctx, analysisPrompt(text), gateway.Options{})
	if err != nil {
		a.fail(jdID, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	// Keyword extraction is best-effort: a blocked or empty response leaves
	// the keyword list empty rather than failing the whole analysis.
	keywords := a.keywords(ctx, text, jdID)

	if err := a.data.CompleteJDAnalysis(jdID, strings.TrimSpace(analysis), keywords); err != nil {
		slog.Error("jd analysis: could not store result", "jd_id", jdID, "error", err)
		return
	}
	slog.Info("jd analysis completed", "jd_id", jdID, "keywords", len(keywords))
}

func (a *Analyzer) extract(ctx context.Context, jd *types.JD) (string, error) {
	if jd.Type == types.JDTypePDF {
		return a.extractor.FromPDF(jd.Source)
	}
	return a.extractor.FromURL(ctx, jd.Source)
}

func (a *Analyzer) keywords(ctx context.Context, text, jdID string) []string {
	raw, err := a.llm.Complete(ctx, keywordsPrompt(text), gateway.Options{Temperature: 0.2})
	if err != nil {
		slog.Warn("jd analysis: keyword extraction failed", "jd_id", jdID, "error", err)
		return nil
	}
	return ParseKeywords(raw)
}

func (a *Analyzer) fail(jdID, message string) {
	slog.Error("jd analysis failed", "jd_id", jdID, "reason", message)
	if err := a.data.FailJDAnalysis(jdID, message); err != nil {
		slog.Error("jd analysis: could not store failure", "jd_id", jdID, "error", err)
	}
}

// ParseKeywords splits a comma-separated model response into cleaned terms,
// dropping single-character fragments.
func ParseKeywords(raw string) []string {
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		kw := strings.TrimSpace(part)
		if len(kw) > 1 {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

func analysisPrompt(text string) string {
	return fmt.Sprintf(`Summarize the following job description for someone tailoring their resume to it. Cover the role's focus, required experience, and main responsibilities in a short paragraph.

Job description:
---
%s
---`, text)
}

func keywordsPrompt(text string) string {
	return fmt.Sprintf(`Extract the most important skills, technologies, and qualifications from the following job description. Respond with a single comma-separated list and no other text.

Job description:
---
%s
---`, text)
}
