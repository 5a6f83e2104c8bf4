// Mercator is an LLM API gateway that multiplexes client traffic across
// many upstream providers, routing each request to a concrete
// (provider, model) endpoint chosen from a weighted, load-balanced pool
// with automatic failover around unhealthy endpoints.
//
// Usage:
//
//	# Start the gateway with default configuration
//	mercator run
//
//	# Start with a custom listen address
//	mercator run --listen 0.0.0.0:8080
//
//	# Bulk-import providers/endpoints from a seed file on first boot
//	mercator run --seed providers.yaml
//
//	# Show version information
//	mercator version
//
// For complete documentation, see: https://github.com/xiongxionghk/api-pool-gateway
package main

func main() {
	Execute()
}
