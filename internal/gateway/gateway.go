package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash-latest"

const (
	defaultTemperature     float32 = 0.7
	defaultMaxOutputTokens int32   = 4096
)

// Options tune a single completion call. Zero values fall back to the
// gateway defaults.
type Options struct {
	Temperature     float32
	MaxOutputTokens int32
	JSONMode        bool
}

// Completer is the seam every AI-backed component depends on, so tests can
// swap in canned responses.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// BlockedError means the model refused the prompt on safety grounds and
// returned no candidates.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("prompt blocked: %s", e.Reason)
}

// EmptyResponseError means the call succeeded but produced no usable text.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string {
	return "model returned an empty response"
}

// Gateway is the single entry point for Gemini calls. Safety settings and
// sampling defaults are fixed here so every component talks to the model the
// same way.
type Gateway struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Gateway, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gateway{client: client, model: model}, nil
}

func (g *Gateway) Close() error {
	return g.client.Close()
}

func (g *Gateway) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
	}
	model.SetTopK(1)
	model.SetTopP(1)

	temp := opts.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}
	model.SetTemperature(temp)

	maxTokens := opts.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxOutputTokens
	}
	model.SetMaxOutputTokens(maxTokens)

	if opts.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		reason := "unknown"
		if resp.PromptFeedback != nil {
			reason = fmt.Sprint(resp.PromptFeedback.BlockReason)
		}
		slog.Warn("prompt blocked by safety settings", "reason", reason)
		return "", &BlockedError{Reason: reason}
	}

	text := collectText(resp.Candidates[0])
	if strings.TrimSpace(text) == "" {
		return "", &EmptyResponseError{}
	}

	return text, nil
}

func collectText(candidate *genai.Candidate) string {
	if candidate.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}
