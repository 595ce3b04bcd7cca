package api

import (
	"time"

	"github.com/hopdash/hopdash/dashboard/internal/state"
)

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	State     string    `json:"state"` // connecting | connected | disconnected
	SelfID    string    `json:"self_id,omitempty"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error,omitempty"`
	ServerOK  bool      `json:"server_ok"`
}

// StatsResponse is the payload for GET /api/v1/stats. The value fields are
// null while ServerOK is false.
type StatsResponse struct {
	ServerOK        bool       `json:"server_ok"`
	ConnectionCount *int       `json:"connection_count"`
	BootTime        *time.Time `json:"boot_time"`
	UptimeSeconds   *float64   `json:"uptime_seconds"`
	Classes         []string   `json:"classes"`
	FetchedAt       *time.Time `json:"fetched_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// NodeClassResponse is the payload for GET /api/v1/nodes/{class}.
type NodeClassResponse struct {
	Class string   `json:"class"`
	Names []string `json:"names"`
}

// LogResponse is the payload for GET /api/v1/log.
type LogResponse struct {
	Entries []state.LogEntry `json:"entries"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
