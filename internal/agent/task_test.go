package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt(1280, 800)

	assert.Contains(t, prompt, "1280x800 pixel browser page")
	assert.Contains(t, prompt, "browser_action")
	assert.Contains(t, prompt, "origin at the top left")
}

func TestTaskPrompt(t *testing.T) {
	headers := []string{"name", "email", "message"}
	row := map[string]string{
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"message": "Hello there",
	}

	prompt := TaskPrompt(headers, row)

	// Fields render in header order, not map order.
	assert.Contains(t, prompt, "- name: Ada Lovelace\n- email: ada@example.com\n- message: Hello there\n")
	assert.Contains(t, prompt, "Fill in every field listed above with its exact value.")
	assert.Contains(t, prompt, "Submit the form.")
	assert.Contains(t, prompt, "reference or confirmation number")
}

func TestTaskPromptMissingColumnRendersEmpty(t *testing.T) {
	prompt := TaskPrompt([]string{"name", "phone"}, map[string]string{"name": "Ada"})

	assert.Contains(t, prompt, "- name: Ada\n")
	assert.Contains(t, prompt, "- phone: \n")
	// Two field lines exactly, one per header.
	assert.Equal(t, 2, strings.Count(prompt, "\n- "))
}
