// Package upstream issues the single HTTP attempt the Dispatcher makes
// against one provider's base URL, pooling connections per provider.
//
// Grounded on the teacher's pkg/providers/http_provider.go: same
// transport tuning (MaxIdleConns/MaxIdleConnsPerHost/IdleConnTimeout,
// ForceAttemptHTTP2) and the same non-2xx -> typed-error classification.
// Retry-with-backoff across attempts is NOT repeated here: the
// Dispatcher already retries across distinct candidate endpoints (§4.5),
// so a second retry loop inside the HTTP client would double up backoff
// against a single endpoint instead of failing over to the next one.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	gwerrors "github.com/xiongxionghk/api-pool-gateway/pkg/gateway/errors"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

// Pool hands out one pooled *http.Client per provider id.
type Pool struct {
	mu      sync.RWMutex
	clients map[int64]*http.Client
}

// NewPool creates an empty client pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[int64]*http.Client)}
}

func (p *Pool) clientFor(providerID int64) *http.Client {
	p.mu.RLock()
	c, ok := p.clients[providerID]
	p.mu.RUnlock()
	if ok {
		return c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[providerID]; ok {
		return c
	}
	c = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
	p.clients[providerID] = c
	return c
}

// authHeader returns the header name a provider's wire format expects its
// API key under.
func authHeader(format types.WireFormat) (name, prefix string) {
	switch format {
	case types.WireFormatAnthropic:
		return "x-api-key", ""
	default:
		return "Authorization", "Bearer "
	}
}

// canonicalPath returns the provider-format-specific completion path
// (§6: OpenAI has no /v1 prefix on the base URL, Anthropic does), avoiding
// a doubled "/v1" when base_url already ends in it.
func canonicalPath(format types.WireFormat, baseURL string) string {
	switch format {
	case types.WireFormatAnthropic:
		if strings.HasSuffix(strings.TrimRight(baseURL, "/"), "/v1") {
			return "/messages"
		}
		return "/v1/messages"
	default:
		return "/chat/completions"
	}
}

// modelsPath returns the provider-format-specific model-list path,
// avoiding a doubled "/v1" when base_url already ends in it (§6).
func modelsPath(format types.WireFormat, baseURL string) string {
	hasV1 := strings.HasSuffix(strings.TrimRight(baseURL, "/"), "/v1")
	switch format {
	case types.WireFormatAnthropic:
		if hasV1 {
			return "/models"
		}
		return "/v1/models"
	default:
		return "/models"
	}
}

// Request describes one upstream attempt.
type Request struct {
	Provider types.Provider
	Body     []byte
	Stream   bool
}

// Do issues a single HTTP POST to provider.BaseURL + the format's
// canonical path, within ctx's deadline. On a non-2xx response it reads
// the body and returns a typed UpstreamHTTPError; on a transport failure
// it returns UpstreamTransportError (or UpstreamTimeoutError if ctx
// expired). The caller owns closing resp.Body on success.
func (p *Pool) Do(ctx context.Context, req Request) (*http.Response, error) {
	client := p.clientFor(req.Provider.ID)

	url := req.Provider.BaseURL + canonicalPath(req.Provider.Format, req.Provider.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	headerName, prefix := authHeader(req.Provider.Format)
	httpReq.Header.Set(headerName, prefix+req.Provider.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Provider.Format == types.WireFormatAnthropic {
		httpReq.Header.Set("anthropic-version", "2023-06-01")
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			deadline, _ := ctx.Deadline()
			return nil, &gwerrors.UpstreamTimeoutError{Provider: req.Provider.Name, Timeout: time.Until(deadline).String()}
		}
		return nil, &gwerrors.UpstreamTransportError{Provider: req.Provider.Name, Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return nil, &gwerrors.UpstreamHTTPError{Provider: req.Provider.Name, Status: resp.StatusCode, Body: string(body)}
}

// FetchModels probes provider's model-list endpoint and returns the raw
// response body for the caller to parse (§4.7 fetch-models). The result
// is never persisted by the gateway itself.
func (p *Pool) FetchModels(ctx context.Context, provider types.Provider) ([]byte, error) {
	client := p.clientFor(provider.ID)
	url := provider.BaseURL + modelsPath(provider.Format, provider.BaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	headerName, prefix := authHeader(provider.Format)
	req.Header.Set(headerName, prefix+provider.APIKey)
	if provider.Format == types.WireFormatAnthropic {
		req.Header.Set("anthropic-version", "2023-06-01")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &gwerrors.UpstreamTransportError{Provider: provider.Name, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &gwerrors.UpstreamHTTPError{Provider: provider.Name, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// CloseIdle releases idle connections for every pooled client, called on
// process shutdown.
func (p *Pool) CloseIdle() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
}
