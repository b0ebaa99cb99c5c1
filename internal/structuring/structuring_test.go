package structuring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-enhancer/internal/gateway"
	"resume-enhancer/pkg/types"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, opts gateway.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

const validResumeJSON = `{
  "name": "Ada Lovelace",
  "contactInfo": {"phone": "555-0100", "email": "ada@example.com", "location": "London"},
  "summary": "Engineer.",
  "experience": [
    {"company": "Analytical Engines", "dates": "1840-1850", "title": "Programmer",
     "accomplishments": ["Wrote the first published algorithm", "Documented the engine"]}
  ],
  "education": [{"degree": "Self-taught", "institution": "Home", "date": "1830"}],
  "skills": {"Math": ["Calculus"]}
}`

func TestStructure(t *testing.T) {
	t.Run("direct JSON response", func(t *testing.T) {
		llm := &fakeCompleter{response: validResumeJSON}
		resume, err := New(llm).Structure(context.Background(), "Ada Lovelace ... resume text")
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", resume.Name)
		assert.Len(t, resume.Experience, 1)
		assert.Len(t, resume.Experience[0].Accomplishments, 2)
	})

	t.Run("fenced JSON response", func(t *testing.T) {
		llm := &fakeCompleter{response: "Here is the resume:\n```json\n" + validResumeJSON + "\n```"}
		resume, err := New(llm).Structure(context.Background(), "raw text")
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", resume.Name)
	})

	t.Run("invalid JSON fails", func(t *testing.T) {
		llm := &fakeCompleter{response: "I cannot parse this resume."}
		_, err := New(llm).Structure(context.Background(), "raw text")
		var sErr *StructuringError
		require.ErrorAs(t, err, &sErr)
		assert.Contains(t, sErr.Reason, "not valid JSON")
	})

	t.Run("missing name fails validation", func(t *testing.T) {
		llm := &fakeCompleter{response: `{"name": "  ", "experience": []}`}
		_, err := New(llm).Structure(context.Background(), "raw text")
		var sErr *StructuringError
		require.ErrorAs(t, err, &sErr)
	})

	t.Run("long input is truncated", func(t *testing.T) {
		llm := &fakeCompleter{response: validResumeJSON}
		long := make([]byte, maxPromptChars+5000)
		for i := range long {
			long[i] = 'a'
		}
		_, err := New(llm).Structure(context.Background(), string(long))
		require.NoError(t, err)
		require.Len(t, llm.prompts, 1)
		assert.Less(t, len(llm.prompts[0]), maxPromptChars+1000)
	})
}

func TestFlattenPoints(t *testing.T) {
	resume := &types.StructuredResume{
		Name: "Ada",
		Experience: []types.ExperienceEntry{
			{Company: "A", Accomplishments: []string{"First real point here", "  -  ", "Second real point"}},
			{Company: "B", Accomplishments: []string{"Third point from next job"}},
		},
	}

	points := FlattenPoints(resume)
	assert.Equal(t, []string{"First real point here", "Second real point", "Third point from next job"}, points)
}

func TestFlattenPointsEmpty(t *testing.T) {
	assert.Empty(t, FlattenPoints(&types.StructuredResume{Name: "Ada"}))
}
