// Package metrics provides Prometheus instrumentation for the gateway:
// dispatch outcomes, endpoint latency, cooldown transitions and endpoint
// availability (§4.11).
//
// Usage:
//
//	collector := metrics.NewCollector(nil)
//	http.Handle("/admin/metrics", collector.Handler())
//
//	collector.RecordDispatch("normal", "openai-primary", "success")
//	collector.RecordEndpointLatency("normal", "openai-primary", 842)
package metrics
