package agent

import (
	"strings"
)

type parsedResponse struct {
	Thought     string
	Action      string
	ActionInput string
	FinalAnswer string
}

// parseReActResponse extracts Thought, Action, Action Input, and Final Answer
// from a ReAct-formatted LLM response. Lines without a label continue the
// section above them. A fenced JSON action input is unwrapped.
func parseReActResponse(content string) parsedResponse {
	var (
		result  parsedResponse
		section *string
	)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "Thought:"):
			section = &result.Thought
			result.Thought = strings.TrimPrefix(trimmed, "Thought:")
		case strings.HasPrefix(trimmed, "Action Input:"):
			section = &result.ActionInput
			result.ActionInput = strings.TrimPrefix(trimmed, "Action Input:")
		case strings.HasPrefix(trimmed, "Action:"):
			section = nil
			result.Action = strings.TrimPrefix(trimmed, "Action:")
		case strings.HasPrefix(trimmed, "Final Answer:"):
			section = &result.FinalAnswer
			result.FinalAnswer = strings.TrimPrefix(trimmed, "Final Answer:")
		case strings.HasPrefix(trimmed, "Observation:"):
			// The model started imagining results; ignore the rest.
			section = nil
		case section != nil:
			*section += "\n" + trimmed
		}
	}

	result.Thought = strings.TrimSpace(result.Thought)
	result.Action = strings.TrimSpace(result.Action)
	result.ActionInput = unfence(strings.TrimSpace(result.ActionInput))
	result.FinalAnswer = strings.TrimSpace(result.FinalAnswer)
	return result
}

func unfence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
