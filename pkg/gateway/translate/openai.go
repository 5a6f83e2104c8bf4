package translate

import (
	"encoding/json"
	"fmt"
)

// OpenAI wire types, grounded on the teacher's providers/openai/transform.go.

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  any             `json:"tool_choice,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string                 `json:"type"`
	Function openAIFunctionDefinition `json:"function"`
}

type openAIFunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIStreamResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
}

type openAIStreamChoice struct {
	Index        int               `json:"index"`
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason,omitempty"`
}

type openAIStreamDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

// openAIRequestToCommon converts a parsed OpenAI request body to the
// intermediate Request.
func openAIRequestToCommon(body []byte) (Request, error) {
	var req openAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("parse openai request: %w", err)
	}

	out := Request{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
		Stop:      req.Stop,
		ToolChoice: req.ToolChoice,
	}
	if req.Temperature != 0 {
		out.Temperature, out.HasTemp = req.Temperature, true
	}
	if req.TopP != 0 {
		out.TopP, out.HasTopP = req.TopP, true
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			if out.System != "" {
				out.System += "\n" + m.Content
			} else {
				out.System = m.Content
			}
			continue
		}
		out.Messages = append(out.Messages, Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  fromOpenAIToolCalls(m.ToolCalls),
		})
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type: t.Type,
			Function: FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out, nil
}

// commonRequestToOpenAI serialises the intermediate Request as an OpenAI
// request body, substituting model for the selected upstream model id.
func commonRequestToOpenAI(r Request, model string) ([]byte, error) {
	req := openAIRequest{
		Model:      model,
		MaxTokens:  r.MaxTokens,
		Stream:     r.Stream,
		Stop:       r.Stop,
		ToolChoice: r.ToolChoice,
	}
	if r.HasTemp {
		req.Temperature = r.Temperature
	}
	if r.HasTopP {
		req.TopP = r.TopP
	}

	if r.System != "" {
		req.Messages = append(req.Messages, openAIMessage{Role: "system", Content: r.System})
	}
	for _, m := range r.Messages {
		req.Messages = append(req.Messages, openAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  toOpenAIToolCalls(m.ToolCalls),
		})
	}

	for _, t := range r.Tools {
		req.Tools = append(req.Tools, openAITool{
			Type: "function",
			Function: openAIFunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return json.Marshal(req)
}

func fromOpenAIToolCalls(tcs []openAIToolCall) []ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]ToolCall, len(tcs))
	for i, tc := range tcs {
		out[i] = ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

func toOpenAIToolCalls(tcs []ToolCall) []openAIToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]openAIToolCall, len(tcs))
	for i, tc := range tcs {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		out[i] = openAIToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: openAIFunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

// openAIResponseToCommon converts a parsed OpenAI response body to the
// intermediate Response.
func openAIResponseToCommon(body []byte) (Response, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai response has no choices")
	}
	choice := resp.Choices[0]

	return Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: normalizeOpenAIFinish(choice.FinishReason),
		ToolCalls:    fromOpenAIToolCalls(choice.Message.ToolCalls),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// commonResponseToOpenAI serialises the intermediate Response as an
// OpenAI chat completion response body.
func commonResponseToOpenAI(r Response) ([]byte, error) {
	resp := openAIResponse{
		ID:      r.ID,
		Object:  "chat.completion",
		Model:   r.Model,
		Choices: []openAIChoice{{
			Index: 0,
			Message: openAIMessage{
				Role:      "assistant",
				Content:   r.Content,
				ToolCalls: toOpenAIToolCalls(r.ToolCalls),
			},
			FinishReason: denormalizeToOpenAIFinish(r.FinishReason),
		}},
		Usage: openAIUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.PromptTokens + r.Usage.CompletionTokens,
		},
	}
	return json.Marshal(resp)
}

func normalizeOpenAIFinish(reason string) string {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "content_filter":
		return FinishContentFilter
	default:
		return reason
	}
}

func denormalizeToOpenAIFinish(reason string) string {
	switch reason {
	case FinishStop:
		return "stop"
	case FinishLength:
		return "length"
	case FinishToolCalls:
		return "tool_calls"
	case FinishContentFilter:
		return "content_filter"
	default:
		return reason
	}
}

// openAIStreamEncoder turns intermediate StreamEvents into OpenAI SSE
// `data: {...}` payloads, holding the chunk id/model/role-sent bookkeeping
// an OpenAI stream needs across chunks.
type openAIStreamEncoder struct {
	id        string
	model     string
	sentRole  bool
}

func newOpenAIStreamEncoder() *openAIStreamEncoder {
	return &openAIStreamEncoder{}
}

// Encode returns the SSE payload (without the "data: " prefix/trailing
// blank line) for ev; every event yields a chunk, so the payload is never nil.
func (e *openAIStreamEncoder) Encode(ev StreamEvent) ([]byte, error) {
	if ev.ID != "" {
		e.id = ev.ID
	}
	if ev.Model != "" {
		e.model = ev.Model
	}

	if ev.Done {
		return []byte("[DONE]"), nil
	}

	delta := openAIStreamDelta{}
	if !e.sentRole {
		delta.Role = "assistant"
		e.sentRole = true
	}
	if ev.TextDelta != "" {
		delta.Content = ev.TextDelta
	}
	if ev.HasToolCall {
		idx := ev.ToolCallIdx
		delta.ToolCalls = []openAIToolCall{{
			Index: &idx,
			ID:    ev.ToolCallID,
			Type:  "function",
			Function: openAIFunctionCall{
				Name:      ev.ToolCallName,
				Arguments: ev.ToolCallArgsDelta,
			},
		}}
	}

	chunk := openAIStreamResponse{
		ID:     e.id,
		Object: "chat.completion.chunk",
		Model:  e.model,
		Choices: []openAIStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: denormalizeToOpenAIFinish(ev.FinishReason),
		}},
	}
	if ev.Usage != nil {
		chunk.Usage = &openAIUsage{
			PromptTokens:     ev.Usage.PromptTokens,
			CompletionTokens: ev.Usage.CompletionTokens,
			TotalTokens:      ev.Usage.PromptTokens + ev.Usage.CompletionTokens,
		}
	}
	return json.Marshal(chunk)
}

// decodeOpenAIStreamChunk parses one `data: ` payload from an upstream
// OpenAI SSE stream into a StreamEvent. payload == "[DONE]" yields Done.
func decodeOpenAIStreamChunk(payload string) (StreamEvent, error) {
	if payload == "[DONE]" {
		return StreamEvent{Done: true}, nil
	}

	var chunk openAIStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return StreamEvent{}, fmt.Errorf("parse openai stream chunk: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return StreamEvent{ID: chunk.ID, Model: chunk.Model}, nil
	}
	choice := chunk.Choices[0]

	ev := StreamEvent{
		ID:           chunk.ID,
		Model:        chunk.Model,
		TextDelta:    choice.Delta.Content,
		FinishReason: normalizeOpenAIFinish(choice.FinishReason),
	}
	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		ev.HasToolCall = true
		if tc.Index != nil {
			ev.ToolCallIdx = *tc.Index
		}
		ev.ToolCallID = tc.ID
		ev.ToolCallName = tc.Function.Name
		ev.ToolCallArgsDelta = tc.Function.Arguments
	}
	if chunk.Usage != nil {
		ev.Usage = &Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens}
	}
	return ev, nil
}
