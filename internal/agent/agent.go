// Package agent runs the operator assistant: a ReAct loop over the LLM
// gateway whose actions are catalog tools executed as the caller.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/llm"
)

// DefaultSystemPrompt frames the assistant for fleet operators.
const DefaultSystemPrompt = `You are the operator assistant of a code-maintenance bot fleet.
You help organization members create and promote bots, review prompt proposals,
organize swarms, configure webhooks and run scans. Only act through the tools below.
Report tool errors to the user in plain words; never invent results.`

// Tool is something an agent can invoke during its reasoning loop.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input string) (string, error)
}

type Agent struct {
	systemPrompt string
	gateway      llm.Gateway
	model        string
	tools        map[string]Tool
	order        []string
	maxSteps     int
}

type Config struct {
	SystemPrompt string
	Model        string
	MaxSteps     int // max ReAct iterations
}

func New(gw llm.Gateway, cfg Config) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 8
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Agent{
		systemPrompt: cfg.SystemPrompt,
		gateway:      gw,
		model:        cfg.Model,
		tools:        make(map[string]Tool),
		maxSteps:     cfg.MaxSteps,
	}
}

// RegisterTool adds a tool the agent can use. Registration order is the
// order tools are described to the model.
func (a *Agent) RegisterTool(tool Tool) {
	if _, ok := a.tools[tool.Name()]; !ok {
		a.order = append(a.order, tool.Name())
	}
	a.tools[tool.Name()] = tool
}

type Response struct {
	Answer     string  `json:"answer"`
	Steps      []Step  `json:"steps"`
	TotalSteps int     `json:"total_steps"`
	TokensUsed int     `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// Step records one iteration of the reasoning loop.
type Step struct {
	StepNumber  int    `json:"step"`
	Thought     string `json:"thought"`
	Action      string `json:"action,omitempty"`
	ActionInput string `json:"action_input,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// Run answers userMessage. history holds earlier user and assistant turns
// of the conversation, oldest first.
func (a *Agent) Run(ctx context.Context, history []llm.Message, userMessage string) (*Response, error) {
	systemPrompt := fmt.Sprintf(`%s

You have access to the following tools:
%s
To use a tool, respond with this EXACT format:
Thought: [your reasoning about what to do]
Action: [tool name]
Action Input: [a JSON object with the tool arguments]

When you have enough information to answer, respond with:
Thought: [your final reasoning]
Final Answer: [your response to the user]

Always start with a Thought. You MUST end with a Final Answer.`, a.systemPrompt, a.describeTools())

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	for _, h := range history {
		if h.Role == "user" || h.Role == "assistant" {
			messages = append(messages, h)
		}
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	out := &Response{}
	for step := 0; step < a.maxSteps; step++ {
		resp, err := a.gateway.Chat(ctx, llm.ChatRequest{
			Model:    a.model,
			Messages: messages,
			Stop:     []string{"\nObservation:"},
		})
		if err != nil {
			return nil, fmt.Errorf("agent step %d: %w", step+1, err)
		}
		out.TokensUsed += resp.TotalTokens
		out.CostUSD += resp.CostUSD

		parsed := parseReActResponse(resp.Content)
		s := Step{
			StepNumber:  step + 1,
			Thought:     parsed.Thought,
			Action:      parsed.Action,
			ActionInput: parsed.ActionInput,
		}

		if parsed.FinalAnswer != "" {
			out.Steps = append(out.Steps, s)
			out.Answer = parsed.FinalAnswer
			out.TotalSteps = step + 1
			return out, nil
		}

		switch {
		case parsed.Action == "":
			s.Observation = "Error: respond with an Action or a Final Answer."
		default:
			s.Observation = a.execute(ctx, parsed.Action, parsed.ActionInput)
		}
		out.Steps = append(out.Steps, s)

		messages = append(messages,
			llm.Message{Role: "assistant", Content: resp.Content},
			llm.Message{Role: "user", Content: "Observation: " + s.Observation},
		)
	}

	out.Answer = "I was unable to complete the task within the maximum number of steps."
	out.TotalSteps = a.maxSteps
	return out, nil
}

func (a *Agent) execute(ctx context.Context, name, input string) string {
	tool, ok := a.tools[name]
	if !ok {
		return fmt.Sprintf("Error: tool %q not found. Available tools: %s", name, strings.Join(a.order, ", "))
	}
	slog.Debug("agent executing tool", "tool", name, "input", input)
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return "Error: " + err.Error()
	}
	return result
}

func (a *Agent) describeTools() string {
	var sb strings.Builder
	for _, name := range a.order {
		fmt.Fprintf(&sb, "- %s: %s\n", name, a.tools[name].Description())
	}
	return sb.String()
}
