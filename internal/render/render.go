package render

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"resume-enhancer/internal/ledger"
	"resume-enhancer/pkg/types"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobNotReady = errors.New("job is still processing")
)

// UpstreamError means the enhancement run itself failed, so there is no
// consistent document to render.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("job failed upstream: %s", e.Message)
}

// Letter page geometry in points.
const (
	pageWidth  = 612.0
	pageHeight = 792.0
	margin     = 50.0
)

const (
	nameSize    = 18.0
	contactSize = 10.0
	sectionSize = 14.0
	bodySize    = 11.0

	lineHeightFactor = 1.3
	bulletIndent     = 10.0
)

// renderTimestamp is fixed so repeated renders of the same content are
// byte-identical.
var renderTimestamp = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Materializer turns a finished job plus the client's per-point selections
// into a rendered PDF.
type Materializer struct {
	jobs *ledger.Ledger
}

func NewMaterializer(jobs *ledger.Ledger) *Materializer {
	return &Materializer{jobs: jobs}
}

// Materialize validates the job state, applies the selections, and renders
// the final document.
func (m *Materializer) Materialize(jobID string, selections map[string]string) ([]byte, error) {
	job, err := m.jobs.Get(jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}

	switch job.Status {
	case ledger.StatusDone:
	case ledger.StatusError, ledger.StatusAborted:
		return nil, &UpstreamError{Message: job.ErrorMessage}
	default:
		return nil, ErrJobNotReady
	}

	return Render(ApplySelections(job.Resume, selections))
}

// ApplySelections returns a copy of the resume with each accomplishment
// replaced by the client's selected text. Points without a selection keep
// their original wording.
func ApplySelections(resume *types.StructuredResume, selections map[string]string) *types.StructuredResume {
	out := resume.Clone()
	for i := range out.Experience {
		for j, acc := range out.Experience[i].Accomplishments {
			if chosen, ok := selections[acc]; ok && strings.TrimSpace(chosen) != "" {
				out.Experience[i].Accomplishments[j] = chosen
			}
		}
	}
	return out
}

type page struct {
	doc *gofpdf.Fpdf
	y   float64
}

func (p *page) ensure(lineHeight float64) {
	if p.y+lineHeight > pageHeight-margin {
		p.doc.AddPage()
		p.y = margin
	}
}

// writeLines word-wraps text against the content width and writes it line by
// line, breaking pages as needed. x is the left edge for every line.
func (p *page) writeLines(text string, x, size float64, style string) {
	p.doc.SetFont("Helvetica", style, size)
	lineHeight := size * lineHeightFactor
	width := pageWidth - margin - x

	for _, line := range wrap(p.doc, text, width) {
		p.ensure(lineHeight)
		p.doc.Text(x, p.y+lineHeight, line)
		p.y += lineHeight
	}
}

func (p *page) space(size, factor float64) {
	p.y += size * factor
}

// Render produces the final PDF. Creation metadata is pinned so identical
// input yields identical bytes.
func Render(resume *types.StructuredResume) ([]byte, error) {
	doc := gofpdf.New("P", "pt", "Letter", "")
	doc.SetCreationDate(renderTimestamp)
	doc.SetModificationDate(renderTimestamp)
	doc.SetAutoPageBreak(false, margin)
	doc.AddPage()

	p := &page{doc: doc, y: margin}

	p.writeLines(sanitize(resume.Name), margin, nameSize, "B")
	p.space(nameSize, 0.5)

	if contact := contactLine(resume.ContactInfo); contact != "" {
		p.writeLines(sanitize(contact), margin, contactSize, "")
	}
	p.space(contactSize, 1.5)

	if strings.TrimSpace(resume.Summary) != "" {
		p.writeLines("Summary", margin, sectionSize, "B")
		p.space(sectionSize, 0.3)
		p.writeLines(sanitize(resume.Summary), margin, bodySize, "")
		p.space(bodySize, 1)
	}

	if len(resume.Experience) > 0 {
		p.writeLines("Experience", margin, sectionSize, "B")
		p.space(sectionSize, 0.3)
		for _, exp := range resume.Experience {
			header := exp.Title
			if exp.Company != "" {
				header = fmt.Sprintf("%s, %s", exp.Title, exp.Company)
			}
			if exp.Dates != "" {
				header = fmt.Sprintf("%s (%s)", header, exp.Dates)
			}
			p.writeLines(sanitize(header), margin, bodySize, "B")
			p.space(bodySize, 0.1)
			for _, acc := range exp.Accomplishments {
				p.writeLines(sanitize("- "+acc), margin+bulletIndent, bodySize, "")
				p.space(bodySize, 0.1)
			}
			p.space(bodySize, 0.8)
		}
		p.space(bodySize, 0.2)
	}

	if len(resume.Education) > 0 {
		p.writeLines("Education", margin, sectionSize, "B")
		p.space(sectionSize, 0.3)
		for _, edu := range resume.Education {
			line := edu.Degree
			if edu.Institution != "" {
				line = fmt.Sprintf("%s, %s", line, edu.Institution)
			}
			if edu.Date != "" {
				line = fmt.Sprintf("%s (%s)", line, edu.Date)
			}
			p.writeLines(sanitize(line), margin, bodySize, "")
			p.space(bodySize, 0.2)
		}
		p.space(bodySize, 0.8)
	}

	if len(resume.Skills) > 0 {
		p.writeLines("Skills", margin, sectionSize, "B")
		p.space(sectionSize, 0.3)
		for _, category := range sortedCategories(resume.Skills) {
			line := fmt.Sprintf("%s: %s", category, strings.Join(resume.Skills[category], ", "))
			p.writeLines(sanitize(line), margin, bodySize, "")
			p.space(bodySize, 0.2)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func contactLine(c types.ContactInfo) string {
	var parts []string
	for _, part := range []string{c.Phone, c.Email, c.LinkedIn, c.Location} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " | ")
}

// sortedCategories fixes the iteration order of the skills map so rendering
// is deterministic.
func sortedCategories(skills types.SkillSet) []string {
	categories := make([]string, 0, len(skills))
	for category := range skills {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// wrap greedily packs words into lines that fit the given width.
func wrap(doc *gofpdf.Fpdf, text string, width float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if doc.GetStringWidth(candidate) > width {
			lines = append(lines, current)
			current = word
		} else {
			current = candidate
		}
	}
	return append(lines, current)
}

// sanitize replaces characters outside the core font's range.
func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r > 126 || (r < 32 && r != '\n') {
			sb.WriteByte('?')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
