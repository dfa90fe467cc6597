// Package metrics registers the Prometheus counters, gauges, and histograms Transit
// emits (packetsSent/packetsReceived, pending-table depth, handshake and ping
// latency) plus a small process health/readiness HTTP surface for cmd/transitd.
package metrics
