package gemini

import (
	"encoding/json"
	"testing"

	"github.com/phrazzld/scry-gen/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestConvertSchema(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"question": {"type": "string", "description": "prompt shown to the learner"},
			"options": {"type": "array", "items": {"type": "string"}},
			"answer_index": {"type": "integer"},
			"difficulty": {"enum": ["easy", "hard"]},
			"score": {"type": ["number", "null"]},
			"verified": {"type": "boolean"}
		},
		"required": ["question", "options"],
		"additionalProperties": false
	}`)

	s, err := ConvertSchema(raw)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"question", "options"}, s.Required)
	require.Len(t, s.Properties, 6)

	assert.Equal(t, genai.TypeString, s.Properties["question"].Type)
	assert.Equal(t, "prompt shown to the learner", s.Properties["question"].Description)
	assert.Equal(t, genai.TypeArray, s.Properties["options"].Type)
	require.NotNil(t, s.Properties["options"].Items)
	assert.Equal(t, genai.TypeString, s.Properties["options"].Items.Type)
	assert.Equal(t, genai.TypeInteger, s.Properties["answer_index"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["difficulty"].Type)
	assert.Equal(t, []string{"easy", "hard"}, s.Properties["difficulty"].Enum)
	assert.Equal(t, genai.TypeNumber, s.Properties["score"].Type)
	assert.Equal(t, genai.TypeBoolean, s.Properties["verified"].Type)
}

func TestConvertSchemaInfersContainerTypes(t *testing.T) {
	t.Parallel()

	s, err := ConvertSchema(json.RawMessage(`{"items": {"properties": {"a": {"type": "string"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, genai.TypeArray, s.Type)
	assert.Equal(t, genai.TypeObject, s.Items.Type)
}

func TestConvertSchemaEmptyAndInvalid(t *testing.T) {
	t.Parallel()

	s, err := ConvertSchema(nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = ConvertSchema(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)
}

func TestConvertSchemaFromReflectedType(t *testing.T) {
	t.Parallel()

	type flashcard struct {
		Front string   `json:"front"`
		Back  string   `json:"back"`
		Tags  []string `json:"tags,omitempty"`
	}

	raw, err := generation.SchemaFor[flashcard]()
	require.NoError(t, err)

	s, err := ConvertSchema(raw)
	require.NoError(t, err)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"front", "back"}, s.Required)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
}
