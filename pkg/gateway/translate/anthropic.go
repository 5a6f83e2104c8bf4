package translate

import (
	"encoding/json"
	"fmt"
)

// Anthropic wire types, grounded on the teacher's
// providers/anthropic/transform.go.

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature,omitempty"`
	TopP          float64            `json:"top_p,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	ToolChoice    any                `json:"tool_choice,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// UnmarshalJSON accepts content either as a block array or as a plain
// string, which becomes a single text block.
func (m *anthropicMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	if len(raw.Content) > 0 && raw.Content[0] == '"' {
		var text string
		if err := json.Unmarshal(raw.Content, &text); err != nil {
			return err
		}
		m.Content = []contentBlock{{Type: "text", Text: text}}
		return nil
	}
	return json.Unmarshal(raw.Content, &m.Content)
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []contentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        anthropicUsage `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicStreamEvent struct {
	Type string `json:"type"`

	Message *anthropicResponse `json:"message,omitempty"`

	Index        int               `json:"index,omitempty"`
	ContentBlock *contentBlock     `json:"content_block,omitempty"`
	Delta        *anthropicDelta   `json:"delta,omitempty"`
	Usage        *anthropicUsage   `json:"usage,omitempty"`
}

// anthropicDelta is a union of content_block_delta and message_delta
// shapes; only the fields matching event.Type are populated.
type anthropicDelta struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`

	PartialJSON string `json:"partial_json,omitempty"`

	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// anthropicRequestToCommon converts a parsed Anthropic request body to the
// intermediate Request.
func anthropicRequestToCommon(body []byte) (Request, error) {
	var req anthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("parse anthropic request: %w", err)
	}

	out := Request{
		Model:      req.Model,
		System:     req.System,
		MaxTokens:  req.MaxTokens,
		Stream:     req.Stream,
		Stop:       req.StopSequences,
		ToolChoice: req.ToolChoice,
	}
	if req.Temperature != 0 {
		out.Temperature, out.HasTemp = req.Temperature, true
	}
	if req.TopP != 0 {
		out.TopP, out.HasTopP = req.TopP, true
	}

	for _, m := range req.Messages {
		msg, extra := contentBlocksToMessage(m.Role, m.Content)
		// A message holding only tool_result blocks becomes just its tool
		// messages, without an empty primary message.
		if msg.Content != "" || len(msg.ToolCalls) > 0 || len(extra) == 0 {
			out.Messages = append(out.Messages, msg)
		}
		out.Messages = append(out.Messages, extra...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out, nil
}

// contentBlocksToMessage flattens one Anthropic message's content blocks
// into a primary Message plus any additional tool-result messages a
// user-role tool_result block produces (§4.4: tool_result content blocks
// become OpenAI "tool" messages on the other side).
func contentBlocksToMessage(role string, blocks []contentBlock) (Message, []Message) {
	msg := Message{Role: role}
	var extra []Message
	var text string

	for _, b := range blocks {
		switch b.Type {
		case "text":
			text += b.Text
		case "tool_use":
			argsJSON, _ := json.Marshal(b.Input)
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      b.Name,
					Arguments: string(argsJSON),
				},
			})
		case "tool_result":
			extra = append(extra, Message{
				Role:       "tool",
				Content:    b.Content,
				ToolCallID: b.ToolUseID,
			})
		}
	}
	msg.Content = text
	return msg, extra
}

// commonRequestToAnthropic serialises the intermediate Request as an
// Anthropic request body, substituting model for the selected upstream
// model id and merging adjacent same-role messages (§4.4).
func commonRequestToAnthropic(r Request, model string) ([]byte, error) {
	req := anthropicRequest{
		Model:         model,
		System:        r.System,
		MaxTokens:     r.MaxTokens,
		Stream:        r.Stream,
		StopSequences: r.Stop,
		ToolChoice:    r.ToolChoice,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	if r.HasTemp {
		req.Temperature = r.Temperature
	}
	if r.HasTopP {
		req.TopP = r.TopP
	}

	merged := mergeAdjacentSameRole(messagesForAnthropic(r.Messages))
	for _, m := range merged {
		req.Messages = append(req.Messages, messageToContentBlocks(m))
	}

	for _, t := range r.Tools {
		req.Tools = append(req.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return json.Marshal(req)
}

// messagesForAnthropic folds OpenAI "system" messages into nothing here
// (System is carried on Request.System already) and turns "tool" role
// messages into a user message carrying a tool_result block, since
// Anthropic has no tool role (§4.4).
func messagesForAnthropic(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			continue
		}
		if m.Role == "tool" {
			out = append(out, Message{Role: "user", Content: m.Content, ToolCallID: m.ToolCallID, Name: "__tool_result"})
			continue
		}
		out = append(out, m)
	}
	return out
}

func messageToContentBlocks(m Message) anthropicMessage {
	var blocks []contentBlock
	if m.Name == "__tool_result" {
		blocks = append(blocks, contentBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		return anthropicMessage{Role: m.Role, Content: blocks}
	}
	if m.Content != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return anthropicMessage{Role: m.Role, Content: blocks}
}

// anthropicResponseToCommon converts a parsed Anthropic response body to
// the intermediate Response.
func anthropicResponseToCommon(body []byte) (Response, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("parse anthropic response: %w", err)
	}

	var content string
	var toolCalls []ToolCall
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			content += b.Text
		case "tool_use":
			argsJSON, err := json.Marshal(b.Input)
			if err != nil {
				return Response{}, fmt.Errorf("marshal tool input: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: FunctionCall{Name: b.Name, Arguments: string(argsJSON)},
			})
		}
	}

	return Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      content,
		FinishReason: normalizeAnthropicStop(resp.StopReason),
		ToolCalls:    toolCalls,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// commonResponseToAnthropic serialises the intermediate Response as an
// Anthropic messages response body.
func commonResponseToAnthropic(r Response) ([]byte, error) {
	var blocks []contentBlock
	if r.Content != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: r.Content})
	}
	for _, tc := range r.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
	}

	resp := anthropicResponse{
		ID:         r.ID,
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		Model:      r.Model,
		StopReason: denormalizeToAnthropicStop(r.FinishReason),
		Usage: anthropicUsage{
			InputTokens:  r.Usage.PromptTokens,
			OutputTokens: r.Usage.CompletionTokens,
		},
	}
	return json.Marshal(resp)
}

func normalizeAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	default:
		return reason
	}
}

func denormalizeToAnthropicStop(reason string) string {
	switch reason {
	case FinishStop:
		return "end_turn"
	case FinishLength:
		return "max_tokens"
	case FinishToolCalls:
		return "tool_use"
	default:
		return reason
	}
}

// anthropicStreamEncoder turns intermediate StreamEvents into the typed
// Anthropic event sequence: message_start, content_block_start/delta/stop
// per block, message_delta, message_stop (§4.4 OpenAI->Anthropic).
type anthropicStreamEncoder struct {
	id            string
	model         string
	startSent     bool
	textOpen      bool
	toolOpen      bool
	openToolIdx   int
	nextBlockIdx  int
	finished      bool
}

func newAnthropicStreamEncoder() *anthropicStreamEncoder {
	return &anthropicStreamEncoder{openToolIdx: -1}
}

// anthropicSSEEvent pairs an event name with its JSON data payload.
type anthropicSSEEvent struct {
	Event string
	Data  []byte
}

// Encode returns zero or more typed events for one intermediate event.
func (e *anthropicStreamEncoder) Encode(ev StreamEvent) ([]anthropicSSEEvent, error) {
	var out []anthropicSSEEvent

	if ev.ID != "" {
		e.id = ev.ID
	}
	if ev.Model != "" {
		e.model = ev.Model
	}

	if !e.startSent {
		e.startSent = true
		data, err := json.Marshal(anthropicStreamEvent{
			Type: "message_start",
			Message: &anthropicResponse{
				ID: e.id, Type: "message", Role: "assistant", Model: e.model,
				Content: []contentBlock{},
			},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, anthropicSSEEvent{Event: "message_start", Data: data})
	}

	if ev.TextDelta != "" {
		if !e.textOpen {
			e.textOpen = true
			idx := e.nextBlockIdx
			e.nextBlockIdx++
			data, _ := json.Marshal(anthropicStreamEvent{Type: "content_block_start", Index: idx, ContentBlock: &contentBlock{Type: "text", Text: ""}})
			out = append(out, anthropicSSEEvent{Event: "content_block_start", Data: data})
		}
		data, _ := json.Marshal(anthropicStreamEvent{Type: "content_block_delta", Index: e.nextBlockIdx - 1, Delta: &anthropicDelta{Type: "text_delta", Text: ev.TextDelta}})
		out = append(out, anthropicSSEEvent{Event: "content_block_delta", Data: data})
	}

	if ev.HasToolCall {
		if e.textOpen {
			data, _ := json.Marshal(anthropicStreamEvent{Type: "content_block_stop", Index: e.nextBlockIdx - 1})
			out = append(out, anthropicSSEEvent{Event: "content_block_stop", Data: data})
			e.textOpen = false
		}
		if !e.toolOpen || e.openToolIdx != ev.ToolCallIdx {
			if e.toolOpen {
				data, _ := json.Marshal(anthropicStreamEvent{Type: "content_block_stop", Index: e.nextBlockIdx - 1})
				out = append(out, anthropicSSEEvent{Event: "content_block_stop", Data: data})
			}
			idx := e.nextBlockIdx
			e.nextBlockIdx++
			e.toolOpen = true
			e.openToolIdx = ev.ToolCallIdx
			data, _ := json.Marshal(anthropicStreamEvent{Type: "content_block_start", Index: idx, ContentBlock: &contentBlock{Type: "tool_use", ID: ev.ToolCallID, Name: ev.ToolCallName}})
			out = append(out, anthropicSSEEvent{Event: "content_block_start", Data: data})
		}
		data, _ := json.Marshal(anthropicStreamEvent{Type: "content_block_delta", Index: e.nextBlockIdx - 1, Delta: &anthropicDelta{Type: "input_json_delta", PartialJSON: ev.ToolCallArgsDelta}})
		out = append(out, anthropicSSEEvent{Event: "content_block_delta", Data: data})
	}

	if (ev.FinishReason != "" || ev.Done) && !e.finished {
		e.finished = true
		if e.textOpen || e.toolOpen {
			data, _ := json.Marshal(anthropicStreamEvent{Type: "content_block_stop", Index: e.nextBlockIdx - 1})
			out = append(out, anthropicSSEEvent{Event: "content_block_stop", Data: data})
			e.textOpen, e.toolOpen = false, false
		}
		mdelta := anthropicStreamEvent{Type: "message_delta", Delta: &anthropicDelta{StopReason: denormalizeToAnthropicStop(ev.FinishReason)}}
		if ev.Usage != nil {
			mdelta.Usage = &anthropicUsage{InputTokens: ev.Usage.PromptTokens, OutputTokens: ev.Usage.CompletionTokens}
		}
		data, _ := json.Marshal(mdelta)
		out = append(out, anthropicSSEEvent{Event: "message_delta", Data: data})

		stopData, _ := json.Marshal(anthropicStreamEvent{Type: "message_stop"})
		out = append(out, anthropicSSEEvent{Event: "message_stop", Data: stopData})
	}

	return out, nil
}

// anthropicStreamDecoder collapses the typed Anthropic event sequence
// back into intermediate StreamEvents (§4.4 Anthropic->OpenAI).
type anthropicStreamDecoder struct {
	id    string
	model string
}

// Decode parses one named Anthropic event and returns the StreamEvent it
// produces, or ok=false if the event carries nothing to emit.
func (d *anthropicStreamDecoder) Decode(eventName string, data []byte) (ev StreamEvent, ok bool, err error) {
	var evt anthropicStreamEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return StreamEvent{}, false, fmt.Errorf("parse anthropic stream event: %w", err)
	}

	switch eventName {
	case "message_start":
		if evt.Message != nil {
			d.id = evt.Message.ID
			d.model = evt.Message.Model
		}
		return StreamEvent{}, false, nil

	case "content_block_delta":
		if evt.Delta == nil {
			return StreamEvent{}, false, nil
		}
		if evt.Delta.Text != "" {
			return StreamEvent{ID: d.id, Model: d.model, TextDelta: evt.Delta.Text}, true, nil
		}
		if evt.Delta.PartialJSON != "" {
			return StreamEvent{ID: d.id, Model: d.model, HasToolCall: true, ToolCallIdx: evt.Index, ToolCallArgsDelta: evt.Delta.PartialJSON}, true, nil
		}
		return StreamEvent{}, false, nil

	case "content_block_start":
		if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
			return StreamEvent{ID: d.id, Model: d.model, HasToolCall: true, ToolCallIdx: evt.Index, ToolCallID: evt.ContentBlock.ID, ToolCallName: evt.ContentBlock.Name}, true, nil
		}
		return StreamEvent{}, false, nil

	case "message_delta":
		out := StreamEvent{ID: d.id, Model: d.model}
		if evt.Delta != nil {
			out.FinishReason = normalizeAnthropicStop(evt.Delta.StopReason)
		}
		if evt.Usage != nil {
			out.Usage = &Usage{PromptTokens: evt.Usage.InputTokens, CompletionTokens: evt.Usage.OutputTokens}
		}
		return out, true, nil

	case "message_stop":
		return StreamEvent{ID: d.id, Model: d.model, Done: true}, true, nil

	case "content_block_stop", "ping":
		return StreamEvent{}, false, nil

	default:
		return StreamEvent{}, false, nil
	}
}
