package llm

import "strings"

// letterPreambles are lead-ins models add before the requested text
var letterPreambles = []string{
	"here is the letter:",
	"here is the rejection letter:",
	"here's the letter:",
	"here is a draft:",
	"here's a draft:",
	"letter:",
}

// CleanLetter removes markdown code fences, a conversational lead-in line and
// wrapping quotes from generated letter text.
func CleanLetter(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip potential language identifier on first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	if idx := strings.Index(text, "\n"); idx >= 0 {
		firstLine := strings.ToLower(strings.TrimSpace(text[:idx]))
		for _, preamble := range letterPreambles {
			if firstLine == preamble {
				text = strings.TrimSpace(text[idx+1:])
				break
			}
		}
	}

	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) && strings.Count(text, `"`) == 2 {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}

	return text
}
