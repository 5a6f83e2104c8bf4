// Package translate converts chat completion requests and responses
// between the OpenAI and Anthropic wire formats (§4.4), including the
// two streaming state machines.
//
// Grounded on the teacher's pkg/providers/openai/transform.go and
// pkg/providers/anthropic/transform.go, which convert each wire format to
// and from a provider-agnostic intermediate (providers.CompletionRequest /
// CompletionResponse). This package keeps that intermediate shape for
// cross-format requests; a same-format request bypasses it, and
// TranslateRequest only rewrites its model field.
package translate

// Message is one chat turn in the intermediate representation.
type Message struct {
	Role       string
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

// FunctionCall names a function and its (JSON-encoded) arguments.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Tool is a function the model may call.
type Tool struct {
	Type     string
	Function FunctionDefinition
}

// FunctionDefinition is one callable function's schema.
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is the intermediate, format-agnostic chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Temperature float64
	HasTemp     bool
	TopP        float64
	HasTopP     bool
	MaxTokens   int
	Stream      bool
	Stop        []string
	Tools       []Tool
	ToolChoice  any
}

// Usage is token accounting, present on the final response or stream chunk.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

const (
	FinishStop         = "stop"
	FinishLength       = "length"
	FinishToolCalls    = "tool_calls"
	FinishContentFilter = "content_filter"
)

// Response is the intermediate, format-agnostic chat completion response.
type Response struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	ToolCalls    []ToolCall
	Usage        Usage
}

// StreamEvent is one unit of incremental output, emitted by a decoder and
// consumed by an encoder (§4.4 streaming state machines).
type StreamEvent struct {
	ID           string
	Model        string
	TextDelta    string
	ToolCallIdx  int
	ToolCallID   string
	ToolCallName string
	ToolCallArgsDelta string
	HasToolCall  bool
	FinishReason string
	Usage        *Usage
	Done         bool
}

// mergeAdjacentSameRole merges consecutive messages sharing a role,
// required on the Anthropic side (§4.4: "adjacent same-role messages are
// merged").
func mergeAdjacentSameRole(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role && len(out[n-1].ToolCalls) == 0 && len(m.ToolCalls) == 0 {
			out[n-1].Content += "\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
