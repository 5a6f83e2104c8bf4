package translate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

// Translator converts request/response bodies and SSE streams between
// the OpenAI and Anthropic wire formats (§4.4). It is stateless and safe
// for concurrent use; all per-stream state lives in the encoders/decoders
// created by StreamToClient.
type Translator struct{}

// New creates a Translator.
func New() *Translator {
	return &Translator{}
}

// TranslateRequest converts a client request body in clientFormat into a
// provider request body in providerFormat, substituting upstreamModel for
// the model field. When the formats match the intermediate is bypassed:
// every top-level field of body is kept and only "model" is replaced.
func (t *Translator) TranslateRequest(body []byte, clientFormat, providerFormat types.WireFormat, upstreamModel string) ([]byte, error) {
	if clientFormat == providerFormat {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("parse %s request: %w", clientFormat, err)
		}
		model, err := json.Marshal(upstreamModel)
		if err != nil {
			return nil, err
		}
		fields["model"] = model
		return json.Marshal(fields)
	}
	common, err := t.requestToCommon(body, clientFormat)
	if err != nil {
		return nil, err
	}
	return t.commonToRequest(common, providerFormat, upstreamModel)
}

func (t *Translator) requestToCommon(body []byte, format types.WireFormat) (Request, error) {
	switch format {
	case types.WireFormatOpenAI:
		return openAIRequestToCommon(body)
	case types.WireFormatAnthropic:
		return anthropicRequestToCommon(body)
	default:
		return Request{}, fmt.Errorf("unsupported request format %q", format)
	}
}

func (t *Translator) commonToRequest(r Request, format types.WireFormat, upstreamModel string) ([]byte, error) {
	switch format {
	case types.WireFormatOpenAI:
		return commonRequestToOpenAI(r, upstreamModel)
	case types.WireFormatAnthropic:
		return commonRequestToAnthropic(r, upstreamModel)
	default:
		return nil, fmt.Errorf("unsupported request format %q", format)
	}
}

// TranslateResponse converts a non-streaming provider response body in
// providerFormat into a client response body in clientFormat.
func (t *Translator) TranslateResponse(body []byte, providerFormat, clientFormat types.WireFormat) ([]byte, error) {
	var common Response
	var err error
	switch providerFormat {
	case types.WireFormatOpenAI:
		common, err = openAIResponseToCommon(body)
	case types.WireFormatAnthropic:
		common, err = anthropicResponseToCommon(body)
	default:
		return nil, fmt.Errorf("unsupported response format %q", providerFormat)
	}
	if err != nil {
		return nil, err
	}

	switch clientFormat {
	case types.WireFormatOpenAI:
		return commonResponseToOpenAI(common)
	case types.WireFormatAnthropic:
		return commonResponseToAnthropic(common)
	default:
		return nil, fmt.Errorf("unsupported response format %q", clientFormat)
	}
}

// sseWriter writes one SSE frame and flushes, matching the teacher's
// proxy handlers' raw `data: ...\n\n` writes.
type sseWriter struct {
	w       io.Writer
	flush   func()
}

func (s *sseWriter) writeData(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

func (s *sseWriter) writeNamed(event string, payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

// StreamToClient reads an upstream SSE body in providerFormat from src and
// writes the translated stream in clientFormat to dst, flushing after
// every frame. It returns the number of frames written to dst; the
// Dispatcher uses a nonzero count to decide that bytes have reached the
// client and the attempt can no longer be retried (§4.5).
func (t *Translator) StreamToClient(src io.Reader, providerFormat types.WireFormat, clientFormat types.WireFormat, dst io.Writer, flush func()) (framesWritten int, err error) {
	out := &sseWriter{w: dst, flush: flush}

	switch providerFormat {
	case types.WireFormatOpenAI:
		return t.pumpOpenAIUpstream(src, clientFormat, out)
	case types.WireFormatAnthropic:
		return t.pumpAnthropicUpstream(src, clientFormat, out)
	default:
		return 0, fmt.Errorf("unsupported provider stream format %q", providerFormat)
	}
}

// pumpOpenAIUpstream reads an OpenAI-format upstream SSE body, grounded on
// the teacher's providers/openai/streaming.go scanner loop.
func (t *Translator) pumpOpenAIUpstream(src io.Reader, clientFormat types.WireFormat, out *sseWriter) (int, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	frames := 0
	var oaEnc *openAIStreamEncoder
	var anEnc *anthropicStreamEncoder
	if clientFormat == types.WireFormatOpenAI {
		oaEnc = newOpenAIStreamEncoder()
	} else {
		anEnc = newAnthropicStreamEncoder()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		ev, err := decodeOpenAIStreamChunk(payload)
		if err != nil {
			return frames, err
		}

		n, err := emit(ev, oaEnc, anEnc, out)
		frames += n
		if err != nil {
			return frames, err
		}
		if ev.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return frames, fmt.Errorf("read openai upstream stream: %w", err)
	}
	return frames, nil
}

// pumpAnthropicUpstream reads an Anthropic-format upstream SSE body,
// grounded on the teacher's providers/anthropic/streaming.go event reader.
func (t *Translator) pumpAnthropicUpstream(src io.Reader, clientFormat types.WireFormat, out *sseWriter) (int, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	dec := &anthropicStreamDecoder{}
	frames := 0
	var oaEnc *openAIStreamEncoder
	var anEnc *anthropicStreamEncoder
	if clientFormat == types.WireFormatOpenAI {
		oaEnc = newOpenAIStreamEncoder()
	} else {
		anEnc = newAnthropicStreamEncoder()
	}

	var eventName string
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		case line == "":
			if eventName == "" && dataLine == "" {
				continue
			}
			ev, ok, err := dec.Decode(eventName, []byte(dataLine))
			done := eventName == "message_stop"
			eventName, dataLine = "", ""
			if err != nil {
				return frames, err
			}
			if !ok {
				if done {
					break
				}
				continue
			}
			n, err := emit(ev, oaEnc, anEnc, out)
			frames += n
			if err != nil {
				return frames, err
			}
			if done {
				return frames, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return frames, fmt.Errorf("read anthropic upstream stream: %w", err)
	}
	return frames, nil
}

// emit runs ev through whichever client encoder is active and writes the
// resulting frame(s), returning how many frames were written.
func emit(ev StreamEvent, oaEnc *openAIStreamEncoder, anEnc *anthropicStreamEncoder, out *sseWriter) (int, error) {
	if oaEnc != nil {
		payload, err := oaEnc.Encode(ev)
		if err != nil {
			return 0, err
		}
		if payload == nil {
			return 0, nil
		}
		if err := out.writeData(payload); err != nil {
			return 0, err
		}
		return 1, nil
	}

	events, err := anEnc.Encode(ev)
	if err != nil {
		return 0, err
	}
	for _, e := range events {
		if err := out.writeNamed(e.Event, e.Data); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}
