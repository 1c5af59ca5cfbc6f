package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(LettersFile, "letter-system")
	require.NoError(t, err)
	assert.Contains(t, prompt, "rejection letters")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get(LettersFile, "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
	assert.NotPanics(t, func() {
		assert.NotEmpty(t, MustGet(LettersFile, "letter-user"))
	})
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]string
		expected string
	}{
		{
			name:     "single placeholder",
			template: "Hello {{.Name}}!",
			data:     map[string]string{"Name": "Ada"},
			expected: "Hello Ada!",
		},
		{
			name:     "repeated placeholder",
			template: "{{.A}} and {{.A}}",
			data:     map[string]string{"A": "x"},
			expected: "x and x",
		},
		{
			name:     "unknown placeholder kept",
			template: "{{.A}} {{.B}}",
			data:     map[string]string{"A": "x"},
			expected: "x {{.B}}",
		},
		{
			name:     "value containing placeholder syntax is not expanded",
			template: "{{.Template}} / {{.Name}}",
			data:     map[string]string{"Template": "Dear {{.Name}} {{candidate_name}}", "Name": "Ada"},
			expected: "Dear {{.Name}} {{candidate_name}} / Ada",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.template, tt.data))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Placeholders("{{.B}} {{.A}} {{.B}} {{plain}}"))
	assert.Empty(t, Placeholders("no placeholders"))
}

func TestRender(t *testing.T) {
	ClearCache()

	_, err := Render(LettersFile, "letter-system", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CompanyName")

	out, err := Render(LettersFile, "letter-system", map[string]string{"CompanyName": "Acme"})
	require.NoError(t, err)
	assert.Contains(t, out, "for Acme.")
	assert.NotContains(t, out, "{{.")
}

func TestLettersFile_AllPromptsLoad(t *testing.T) {
	ClearCache()

	keys, err := List(LettersFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"letter-no-template", "letter-system", "letter-template-instructions", "letter-user"}, keys)
}
