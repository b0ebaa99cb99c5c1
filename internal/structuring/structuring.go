package structuring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"resume-enhancer/internal/cleaner"
	"resume-enhancer/internal/gateway"
	"resume-enhancer/pkg/types"
)

// maxPromptChars caps how much resume text is sent to the model.
const maxPromptChars = 30000

// minPointLength filters out fragments like stray dashes when flattening
// accomplishments for enhancement.
const minPointLength = 6

const jsonStructureExample = `{
  "name": "string",
  "contactInfo": { "phone": "string", "email": "string", "linkedin": "string (optional)", "location": "string" },
  "summary": "string",
  "experience": [ { "company": "string", "location": "string (optional)", "dates": "string", "title": "string", "accomplishments": ["string"] } ],
  "education": [ { "degree": "string", "institution": "string", "date": "string" } ],
  "skills": { "category_name": ["string"] }
}`

const resumeSchema = `{
  "type": "object",
  "required": ["name", "experience"],
  "properties": {
    "name": { "type": "string" },
    "contactInfo": {
      "type": "object",
      "properties": {
        "phone": { "type": "string" },
        "email": { "type": "string" },
        "linkedin": { "type": "string" },
        "location": { "type": "string" }
      }
    },
    "summary": { "type": "string" },
    "experience": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["company", "title", "accomplishments"],
        "properties": {
          "company": { "type": "string" },
          "location": { "type": "string" },
          "dates": { "type": "string" },
          "title": { "type": "string" },
          "accomplishments": { "type": "array", "items": { "type": "string" } }
        }
      }
    },
    "education": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "degree": { "type": "string" },
          "institution": { "type": "string" },
          "date": { "type": "string" }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(resumeSchema)

// StructuringError wraps a failed conversion of raw resume text into the
// structured form, keeping the raw model output around for logging.
type StructuringError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *StructuringError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("structuring resume: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("structuring resume: %s", e.Reason)
}

func (e *StructuringError) Unwrap() error {
	return e.Err
}

// Structurer turns raw resume text into a StructuredResume via one model call.
type Structurer struct {
	llm   gateway.Completer
	clean *cleaner.Cleaner
}

func New(llm gateway.Completer) *Structurer {
	return &Structurer{
		llm:   llm,
		clean: cleaner.NewCleaner(),
	}
}

func (s *Structurer) Structure(ctx context.Context, resumeText string) (*types.StructuredResume, error) {
	if len(resumeText) > maxPromptChars {
		resumeText = resumeText[:maxPromptChars]
	}

	prompt := fmt.Sprintf(`Analyze the following resume text and convert it into a structured JSON object.
The JSON object must follow this exact structure:
%s

Group skills into sensible categories. Keep accomplishment bullet points as individual strings, in their original order. Do not invent information that is not in the text.

Respond ONLY with the JSON object, no other text.

Resume Text:
---
%s
---`, jsonStructureExample, resumeText)

	raw, err := s.llm.Complete(ctx, prompt, gateway.Options{Temperature: 0.2, JSONMode: true})
	if err != nil {
		return nil, &StructuringError{Reason: "model call failed", Err: err}
	}

	parsed, err := s.parse(raw)
	if err != nil {
		return nil, err
	}

	if err := validate(parsed); err != nil {
		return nil, &StructuringError{Reason: "schema validation failed", Raw: raw, Err: err}
	}

	var resume types.StructuredResume
	if err := json.Unmarshal(parsed, &resume); err != nil {
		return nil, &StructuringError{Reason: "decoding validated document", Raw: raw, Err: err}
	}
	if strings.TrimSpace(resume.Name) == "" {
		return nil, &StructuringError{Reason: "missing candidate name", Raw: raw}
	}

	slog.Debug("structured resume", "name", resume.Name, "experience_entries", len(resume.Experience))
	return &resume, nil
}

// parse tries the raw response as JSON first, then falls back to pulling a
// fenced code block out of it.
func (s *Structurer) parse(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	fenced := s.clean.ExtractFenced(raw)
	if json.Valid([]byte(fenced)) {
		return json.RawMessage(fenced), nil
	}

	return nil, &StructuringError{Reason: "response is not valid JSON", Raw: raw}
}

func validate(doc json.RawMessage) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// FlattenPoints collects every accomplishment across all experience entries,
// preserving entry order and then bullet order within each entry.
func FlattenPoints(resume *types.StructuredResume) []string {
	var points []string
	for _, exp := range resume.Experience {
		for _, acc := range exp.Accomplishments {
			if len(strings.TrimSpace(acc)) >= minPointLength {
				points = append(points, acc)
			}
		}
	}
	return points
}
