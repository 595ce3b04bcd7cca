// Package config loads and watches the dashboard configuration file (config.yaml).
//
// Top-level types:
//   - Config{LogLevel, Tap, Dashboard, Stats, Nodes}: full config tree parsed from YAML
//   - TapConfig: server, path, transport (websocket|http), cross_domain, origin,
//     check_interval, handshake_timeout; URL() joins server and path
//   - DashboardConfig: http_port, broadcast_interval, log_size
//   - StatsConfig: path, format (json|prometheus), interval, timeout
//   - NodesConfig: path, timeout
//
// Load(path) reads the YAML file, applies defaults (/_/tap over websocket,
// 5s connectivity check, port 8080, /_/server_stats every 5s, /_/nodes),
// then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// a rename event.
package config
