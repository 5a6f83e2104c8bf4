// Package types defines the data model shared by every gateway component:
// providers, endpoints, pool configuration and log entries.
package types

import "time"

// WireFormat is the on-the-wire shape a provider speaks.
type WireFormat string

const (
	WireFormatOpenAI    WireFormat = "openai"
	WireFormatAnthropic WireFormat = "anthropic"
)

// PoolTag names one of the three fixed pools.
type PoolTag string

const (
	PoolTool     PoolTag = "tool"
	PoolNormal   PoolTag = "normal"
	PoolAdvanced PoolTag = "advanced"
)

// AllPools lists the fixed pool tags in a stable order.
var AllPools = []PoolTag{PoolTool, PoolNormal, PoolAdvanced}

// Provider is an upstream LLM account: a base URL, a secret key, and the
// wire format it expects.
type Provider struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	BaseURL   string     `json:"base_url"`
	APIKey    string     `json:"api_key"`
	Format    WireFormat `json:"format"`
	Enabled   bool       `json:"enabled"`
	Total     int64      `json:"total"`
	Success   int64      `json:"success"`
	Error     int64      `json:"error"`
	CreatedAt time.Time  `json:"created_at"`
}

// Endpoint places one upstream model id into one pool for one provider.
type Endpoint struct {
	ID               int64      `json:"id"`
	ProviderID       int64      `json:"provider_id"`
	UpstreamModelID  string     `json:"upstream_model_id"`
	Pool             PoolTag    `json:"pool"`
	Enabled          bool       `json:"enabled"`
	Weight           int        `json:"weight"`
	MinIntervalSecs  int        `json:"min_interval_seconds"`
	Priority         int        `json:"priority"` // accepted, persisted, unused by the Selector
	Total            int64      `json:"total"`
	Success          int64      `json:"success"`
	Error            int64      `json:"error"`
	RollingLatencyMs float64    `json:"rolling_latency_ms"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	LastUsed         *time.Time `json:"last_used,omitempty"`
}

// PoolConfig holds the per-pool tunables.
type PoolConfig struct {
	Pool             PoolTag `json:"pool"`
	VirtualModel     string  `json:"virtual_model"`
	CooldownSeconds  int     `json:"cooldown_seconds"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
	MaxRetries       int     `json:"max_retries"` // 0 means unbounded within the pool
}

// LogEntry records a single dispatch attempt.
type LogEntry struct {
	ID              int64     `json:"id"`
	Pool            PoolTag   `json:"pool"`
	RequestedModel  string    `json:"requested_model"`
	ActualModel     string    `json:"actual_model"`
	Provider        string    `json:"provider"`
	Success         bool      `json:"success"`
	HTTPStatus      *int      `json:"http_status,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	LatencyMs       int64     `json:"latency_ms"`
	InputTokens     *int64    `json:"input_tokens,omitempty"`
	OutputTokens    *int64    `json:"output_tokens,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// LogFilter narrows a paginated log read.
type LogFilter struct {
	Pool     PoolTag
	Success  *bool
	Provider string
	Offset   int
	Limit    int
}

// ShortCooldownCap bounds the reduced cooldown applied to non-retriable
// client errors (§4.2) so a correctable 4xx doesn't poison a pool.
const ShortCooldownCap = 5 * time.Second

// RollingLatencyAlpha is the exponential smoothing factor for endpoint
// latency, applied over successful attempts only.
const RollingLatencyAlpha = 0.2
