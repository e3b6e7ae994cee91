// Package openai renders the action catalog as OpenAI function tools and
// dispatches tool calls back to it.
package openai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
)

type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      bool            `json:"strict"`
}

type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// ToolCall is the assistant-side request to run a tool. Arguments is the
// JSON-encoded argument object exactly as the model produced it.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type Message struct {
	Role       string `json:"role"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

func Tools(kit *actions.AgentKit) ([]Tool, error) {
	out := make([]Tool, 0, len(kit.Actions()))
	for _, action := range kit.Actions() {
		params, err := json.Marshal(action.Schema)
		if err != nil {
			return nil, err
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        action.Name,
				Description: action.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}

// Dispatch runs call and wraps the outcome in a tool message. It never
// fails: rejected calls are reported to the model in the content.
func Dispatch(ctx context.Context, kit *actions.AgentKit, call ToolCall) Message {
	msg := Message{Role: "tool", ToolCallID: call.ID}
	args := json.RawMessage(strings.TrimSpace(call.Function.Arguments))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result, err := kit.Invoke(ctx, call.Function.Name, args)
	if err != nil {
		msg.Content = "Error executing tool: " + err.Error()
		return msg
	}
	msg.Content = result
	return msg
}

func DispatchAll(ctx context.Context, kit *actions.AgentKit, calls []ToolCall) []Message {
	out := make([]Message, 0, len(calls))
	for _, call := range calls {
		out = append(out, Dispatch(ctx, kit, call))
	}
	return out
}
