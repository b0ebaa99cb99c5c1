package extraction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"resume-enhancer/internal/cleaner"
)

// MinTextLength is the smallest extraction result considered usable. Anything
// shorter almost always means a scanned document or an empty page.
const MinTextLength = 50

const fetchTimeout = 20 * time.Second

// ExtractionError reports a failed extraction along with which source kind
// (url or pdf) produced it.
type ExtractionError struct {
	Source string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract from %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract from %s: %s", e.Source, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor pulls plain text out of job posting URLs and PDF files.
type Extractor struct {
	client *http.Client
	clean  *cleaner.Cleaner
}

func New() *Extractor {
	return &Extractor{
		client: &http.Client{Timeout: fetchTimeout},
		clean:  cleaner.NewCleaner(),
	}
}

// FromURL fetches the page and reduces it to readable text.
func (e *Extractor) FromURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &ExtractionError{Source: "url", Reason: "building request", Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &ExtractionError{Source: "url", Reason: "fetching page", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ExtractionError{Source: "url", Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ExtractionError{Source: "url", Reason: "reading body", Err: err}
	}

	text := e.clean.CleanHTML(string(body))
	if len(strings.TrimSpace(text)) < MinTextLength {
		return "", &ExtractionError{Source: "url", Reason: "extracted text too short"}
	}

	slog.Debug("extracted text from url", "url", url, "chars", len(text))
	return text, nil
}

// FromPDF reads every page of the file and concatenates its plain text.
func (e *Extractor) FromPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", &ExtractionError{Source: "pdf", Reason: "opening file", Err: err}
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "path", path, "page", i, "error", err)
			continue
		}
		pages = append(pages, text)
	}

	text := strings.Join(pages, "\n")
	if len(strings.TrimSpace(text)) < MinTextLength {
		return "", &ExtractionError{Source: "pdf", Reason: "extracted text too short"}
	}

	slog.Debug("extracted text from pdf", "path", path, "pages", len(pages), "chars", len(text))
	return text, nil
}
