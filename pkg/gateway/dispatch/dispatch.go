// Package dispatch implements the request entry point (§4.5): resolve the
// pool, ask the Selector for candidates, translate, call upstream with
// failover, and record the outcome.
//
// Grounded on the teacher's pkg/proxy/handlers/chat.go for the overall
// shape (parse -> select -> forward -> translate back -> log, with the
// same structured slog fields) generalised to the pool/candidate/failover
// loop described by the specification instead of chat.go's single
// best-provider pick.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gwerrors "github.com/xiongxionghk/api-pool-gateway/pkg/gateway/errors"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/healthstate"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/redact"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/selector"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/store"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/translate"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/upstream"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/logging"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/metrics"
)

// Dispatcher is the request entry point shared by the OpenAI- and
// Anthropic-shaped HTTP handlers.
type Dispatcher struct {
	reg        *registry.Registry
	sel        *selector.Selector
	health     *healthstate.State
	translator *translate.Translator
	client     *upstream.Pool
	logs       store.Store
	logger     *logging.Logger
	metrics    *metrics.Collector
}

// New creates a Dispatcher. collector may be nil, in which case dispatch
// outcomes are not instrumented.
func New(reg *registry.Registry, sel *selector.Selector, health *healthstate.State, logs store.Store, logger *logging.Logger, collector *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		reg:        reg,
		sel:        sel,
		health:     health,
		translator: translate.New(),
		client:     upstream.NewPool(),
		logs:       logs,
		logger:     logger.With("component", "dispatch"),
		metrics:    collector,
	}
}

// Dispatch runs the full candidate loop for one request. clientFormat is
// the wire format the inbound requestBody is already shaped as (and the
// format the response/stream must be translated back into). requestModel
// is the virtual model name the client asked for.
func (d *Dispatcher) Dispatch(ctx context.Context, requestModel string, requestBody []byte, clientFormat types.WireFormat, w http.ResponseWriter, flusher http.Flusher) error {
	pool, ok := d.reg.ResolveVirtualModel(requestModel)
	if !ok {
		return &gwerrors.UnknownModelError{Model: requestModel}
	}

	poolCfg, ok := d.reg.GetPoolConfig(pool)
	if !ok {
		return &gwerrors.PoolEmptyError{Pool: string(pool)}
	}

	now := time.Now()
	candidates := d.sel.Candidates(pool, now)
	if len(candidates) == 0 {
		return &gwerrors.PoolEmptyError{Pool: string(pool)}
	}

	maxAttempts := len(candidates)
	if poolCfg.MaxRetries > 0 && poolCfg.MaxRetries < maxAttempts {
		maxAttempts = poolCfg.MaxRetries
	}

	timeout := time.Duration(poolCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var failures []gwerrors.CandidateFailure
	streamFlag := isStreamRequest(requestBody, clientFormat)

	for i := 0; i < maxAttempts && i < len(candidates); i++ {
		endpointID := candidates[i]
		endpoint, ok := d.reg.GetEndpoint(endpointID)
		if !ok {
			continue
		}
		provider, ok := d.reg.GetProvider(endpoint.ProviderID)
		if !ok || !provider.Enabled {
			continue
		}

		d.health.MarkAttemptStart(endpointID, time.Now())

		providerBody, err := d.translator.TranslateRequest(requestBody, clientFormat, provider.Format, endpoint.UpstreamModelID)
		if err != nil {
			return &gwerrors.TranslationError{Reason: err.Error()}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()

		if streamFlag {
			sent, err := d.attemptStream(attemptCtx, provider, providerBody, clientFormat, w, flusher)
			cancel()
			latency := time.Since(start)

			if err == nil {
				d.recordSuccess(ctx, pool, endpointID, provider, latency)
				d.log(ctx, pool, requestModel, endpoint.UpstreamModelID, provider.Name, endpointID, true, nil, latency)
				return nil
			}
			if sent {
				// Bytes already reached the client; no further retry
				// is possible (§4.5).
				d.log(ctx, pool, requestModel, endpoint.UpstreamModelID, provider.Name, endpointID, false, err, latency)
				return err
			}
			d.recordFailure(ctx, pool, endpointID, provider, poolCfg, err)
			d.log(ctx, pool, requestModel, endpoint.UpstreamModelID, provider.Name, endpointID, false, err, latency)
			failures = append(failures, gwerrors.CandidateFailure{Provider: provider.Name, EndpointID: endpointID, Err: err})
			continue
		}

		status, body, err := d.attemptOnce(attemptCtx, provider, providerBody)
		cancel()
		latency := time.Since(start)

		if err != nil {
			d.recordFailure(ctx, pool, endpointID, provider, poolCfg, err)
			d.log(ctx, pool, requestModel, endpoint.UpstreamModelID, provider.Name, endpointID, false, err, latency)
			failures = append(failures, gwerrors.CandidateFailure{Provider: provider.Name, EndpointID: endpointID, Err: err})
			continue
		}

		clientBody, err := d.translator.TranslateResponse(body, provider.Format, clientFormat)
		if err != nil {
			malformed := &gwerrors.UpstreamMalformedError{Provider: provider.Name, Cause: err}
			d.recordFailure(ctx, pool, endpointID, provider, poolCfg, malformed)
			d.log(ctx, pool, requestModel, endpoint.UpstreamModelID, provider.Name, endpointID, false, malformed, latency)
			failures = append(failures, gwerrors.CandidateFailure{Provider: provider.Name, EndpointID: endpointID, Err: malformed})
			continue
		}

		d.recordSuccess(ctx, pool, endpointID, provider, latency)
		d.log(ctx, pool, requestModel, endpoint.UpstreamModelID, provider.Name, endpointID, true, nil, latency)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(clientBody)
		return nil
	}

	d.logAggregateFailure(ctx, pool, requestModel, failures)
	return &gwerrors.AllCandidatesFailedError{Pool: string(pool), Candidates: failures}
}

// attemptOnce performs one non-streaming upstream call and returns its
// status code and raw body.
func (d *Dispatcher) attemptOnce(ctx context.Context, provider types.Provider, body []byte) (int, []byte, error) {
	resp, err := d.client.Do(ctx, upstream.Request{Provider: provider, Body: body})
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &gwerrors.UpstreamMalformedError{Provider: provider.Name, Cause: err}
	}
	return resp.StatusCode, respBody, nil
}

// attemptStream performs one streaming upstream call, piping translated
// events to the client. The returned bool reports whether any bytes were
// written to the client before an error occurred (§4.5).
func (d *Dispatcher) attemptStream(ctx context.Context, provider types.Provider, body []byte, clientFormat types.WireFormat, w http.ResponseWriter, flusher http.Flusher) (bool, error) {
	resp, err := d.client.Do(ctx, upstream.Request{Provider: provider, Body: body, Stream: true})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	var flush func()
	if flusher != nil {
		flush = flusher.Flush
	}

	frames, err := d.translator.StreamToClient(resp.Body, provider.Format, clientFormat, w, flush)
	if err != nil {
		if ctx.Err() != nil {
			return frames > 0, &gwerrors.ClientDisconnectError{}
		}
		return frames > 0, &gwerrors.UpstreamMalformedError{Provider: provider.Name, Cause: err}
	}
	return frames > 0, nil
}

func (d *Dispatcher) recordSuccess(ctx context.Context, pool types.PoolTag, endpointID int64, provider types.Provider, latency time.Duration) {
	rolling := d.health.MarkSuccess(endpointID, latency)
	snap := d.health.Snapshot(endpointID)
	if e, ok := d.reg.GetEndpoint(endpointID); ok {
		e.RollingLatencyMs = rolling
		e.Total++
		e.Success++
		e.LastError = ""
		now := snap.LastUsed
		e.LastUsed = &now
		e.CooldownUntil = nil
		_ = d.reg.UpdateEndpointHealth(ctx, e)
	}
	d.reg.RecordProviderOutcome(ctx, provider.ID, true)

	if d.metrics != nil {
		d.metrics.RecordDispatch(string(pool), provider.Name, "success")
		d.metrics.RecordEndpointLatency(string(pool), provider.Name, float64(latency.Milliseconds()))
		d.metrics.SetEndpointAvailable(string(pool), provider.Name, d.health.IsAvailable(endpointID, time.Now(), false))
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, pool types.PoolTag, endpointID int64, provider types.Provider, poolCfg types.PoolConfig, err error) {
	cooldown := time.Duration(poolCfg.CooldownSeconds) * time.Second
	full := isFullCooldown(err)
	until := time.Time{}
	if cooldown > 0 {
		until = d.health.MarkFailure(endpointID, time.Now(), cooldown, full)
	}

	if e, ok := d.reg.GetEndpoint(endpointID); ok {
		e.Total++
		e.Error++
		e.LastError = redactErr(d.reg, provider.ID, err)
		now := time.Now()
		e.LastUsed = &now
		if !until.IsZero() {
			e.CooldownUntil = &until
		}
		_ = d.reg.UpdateEndpointHealth(ctx, e)
	}
	d.reg.RecordProviderOutcome(ctx, provider.ID, false)

	if d.metrics != nil {
		d.metrics.RecordDispatch(string(pool), provider.Name, "failure")
		if !until.IsZero() {
			kind := "full"
			if !full {
				kind = "short"
			}
			d.metrics.RecordCooldown(string(pool), provider.Name, kind)
		}
		d.metrics.SetEndpointAvailable(string(pool), provider.Name, d.health.IsAvailable(endpointID, time.Now(), false))
	}
}

// redactErr scrubs known secret shapes, plus the originating provider's own
// API key if it happens to be echoed back verbatim in an upstream error
// body, before the message is persisted to the endpoint's last-error field.
// Log sink entries are scrubbed with redact.String only (see log).
func redactErr(reg *registry.Registry, providerID int64, err error) string {
	msg := err.Error()
	if provider, ok := reg.GetProvider(providerID); ok {
		return redact.Key(msg, provider.APIKey)
	}
	return redact.String(msg)
}

// isFullCooldown reports whether err warrants the pool's full cooldown
// rather than the short cap (§4.2, §7).
func isFullCooldown(err error) bool {
	if httpErr, ok := err.(*gwerrors.UpstreamHTTPError); ok {
		return httpErr.FullCooldown()
	}
	// Transport errors and timeouts are treated as full-cooldown-worthy
	// outages rather than correctable client errors.
	return true
}

func (d *Dispatcher) log(ctx context.Context, pool types.PoolTag, requestedModel, actualModel, provider string, endpointID int64, success bool, attemptErr error, latency time.Duration) {
	entry := &types.LogEntry{
		Pool:           pool,
		RequestedModel: requestedModel,
		ActualModel:    actualModel,
		Provider:       provider,
		Success:        success,
		LatencyMs:      latency.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if attemptErr != nil {
		entry.ErrorMessage = redact.String(attemptErr.Error())
		if httpErr, ok := attemptErr.(*gwerrors.UpstreamHTTPError); ok {
			status := httpErr.Status
			entry.HTTPStatus = &status
		} else if _, ok := attemptErr.(*gwerrors.ClientDisconnectError); ok {
			status := gwerrors.StatusCode(attemptErr)
			entry.HTTPStatus = &status
		}
	}
	if d.logs != nil {
		if err := d.logs.AppendLog(ctx, entry); err != nil {
			d.logger.Error("failed to append log entry", "error", err)
		}
	}

	logCtx := logging.WithEndpointID(logging.WithModel(logging.WithProvider(logging.WithPool(ctx, string(pool)), provider), actualModel), endpointID)
	if success {
		d.logger.InfoContext(logCtx, "dispatch succeeded", "latency_ms", latency.Milliseconds())
	} else {
		d.logger.WarnContext(logCtx, "dispatch attempt failed", "latency_ms", latency.Milliseconds(), "error", attemptErr)
	}
}

func (d *Dispatcher) logAggregateFailure(ctx context.Context, pool types.PoolTag, requestedModel string, failures []gwerrors.CandidateFailure) {
	msg := fmt.Sprintf("all %d candidates failed", len(failures))
	entry := &types.LogEntry{
		Pool:           pool,
		RequestedModel: requestedModel,
		ActualModel:    requestedModel,
		Provider:       "none",
		Success:        false,
		ErrorMessage:   msg,
		CreatedAt:      time.Now().UTC(),
	}
	if d.logs != nil {
		_ = d.logs.AppendLog(ctx, entry)
	}
	logCtx := logging.WithModel(logging.WithPool(ctx, string(pool)), requestedModel)
	d.logger.ErrorContext(logCtx, "all candidates exhausted", "attempts", len(failures))
}

// isStreamRequest sniffs the "stream" field out of a request body without
// a full parse, since the Dispatcher needs to know before it picks the
// non-streaming vs. streaming attempt path.
func isStreamRequest(body []byte, format types.WireFormat) bool {
	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Stream
}
