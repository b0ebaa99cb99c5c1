package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkillSetUnmarshal(t *testing.T) {
	t.Run("categorized map", func(t *testing.T) {
		var s SkillSet
		require.NoError(t, json.Unmarshal([]byte(`{"Languages": ["Go", "Python"]}`), &s))
		assert.Equal(t, SkillSet{"Languages": {"Go", "Python"}}, s)
	})

	t.Run("flat list folds into a single category", func(t *testing.T) {
		var s SkillSet
		require.NoError(t, json.Unmarshal([]byte(`["Go", "Python"]`), &s))
		assert.Equal(t, SkillSet{"Skills": {"Go", "Python"}}, s)
	})

	t.Run("invalid shape fails", func(t *testing.T) {
		var s SkillSet
		assert.Error(t, json.Unmarshal([]byte(`42`), &s))
	})
}

func TestStructuredResumeClone(t *testing.T) {
	original := &StructuredResume{
		Name: "Ada",
		Experience: []ExperienceEntry{
			{Company: "A", Accomplishments: []string{"one", "two"}},
		},
		Skills: SkillSet{"Math": {"Calculus"}},
	}

	clone := original.Clone()
	clone.Experience[0].Accomplishments[0] = "changed"
	clone.Skills["Math"][0] = "changed"

	assert.Equal(t, "one", original.Experience[0].Accomplishments[0])
	assert.Equal(t, "Calculus", original.Skills["Math"][0])
}
