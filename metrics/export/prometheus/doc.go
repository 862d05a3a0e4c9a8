// Package prometheus renders engine metrics in the Prometheus text exposition
// format.
//
// [New] takes a [Source], normally the *sessionguard.Engine, and [Exporter.Handler]
// serves the rendering. Counters are named sessionguard_*_total; the latency
// histograms are sessionguard_signin_latency_seconds and
// sessionguard_refresh_latency_seconds and appear only when latency
// histograms are enabled.
//
// # What this package must NOT do
//
//   - Register in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
