// Package stats polls the Hop server's statistics endpoint.
//
// The Hop server serves its stats as JSON ({connection_count, boot_time,
// uptime, classes}); that is the default format.
//
// Format "prometheus" is an optional extension for deployments that put an
// exporter in front of the server. It is not part of the Hop server's own
// contract. The exposition must carry hop_uptime_seconds and may carry
// hop_connection_count, hop_boot_time_seconds and one hop_class_info series
// per class. An exposition that fails to parse anywhere is rejected whole.
//
// A failed fetch marks the stats as unavailable in the sink rather than
// keeping the last reading.
package stats
