package agent

import (
	"fmt"
	"strings"
)

// SystemPrompt renders the fixed operator instructions, anchored to the
// viewport so the model targets coordinates that exist.
func SystemPrompt(viewportWidth, viewportHeight int) string {
	return fmt.Sprintf(`You are a browser automation agent that fills out web forms.
You control a %dx%d pixel browser page through the browser_action tool. Coordinates are viewport pixels with the origin at the top left.
Every action you request returns a fresh screenshot of the page, so verify the effect of each step before taking the next one.
Click a field before typing into it. Use the key action with "return" or "tab" where the form expects it, and scroll when a field is below the fold.
When the task is finished, reply with a short summary and do not request any further action.`,
		viewportWidth, viewportHeight)
}

// TaskPrompt renders the per-row instructions. Fields keep their CSV column
// order so related inputs stay adjacent.
func TaskPrompt(headers []string, row map[string]string) string {
	var sb strings.Builder
	sb.WriteString("Fill out the web form on the current page with the following data:\n\n")
	for _, header := range headers {
		fmt.Fprintf(&sb, "- %s: %s\n", header, row[header])
	}
	sb.WriteString(`
Proceed as follows:
1. Take a screenshot to see the current state of the form.
2. Fill in every field listed above with its exact value.
3. Submit the form.
4. Take a screenshot of the confirmation page.
5. If a reference or confirmation number is shown, state it in your reply.
`)
	return sb.String()
}
