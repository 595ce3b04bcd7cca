package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hopdash/hopdash/dashboard/internal/state"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads the dashboard state and returns JSON responses.
type Handler struct {
	state *state.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given state store and registers all routes.
func New(st *state.Store) http.Handler {
	h := &Handler{state: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/stats", h.stats)
	h.mux.HandleFunc("/api/v1/nodes", h.listNodes)
	h.mux.HandleFunc("/api/v1/nodes/", h.getNodeClass) // subtree, extracts {class}
	h.mux.HandleFunc("/api/v1/log", h.log)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// status returns GET /api/v1/status: tap connection state and server health.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	snap := h.state.Snapshot()
	jsonResp(w, http.StatusOK, StatusResponse{
		State:     snap.Connection.State,
		SelfID:    snap.Connection.SelfID,
		Since:     snap.Connection.Since,
		LastError: snap.Connection.LastError,
		ServerOK:  snap.ServerOK,
	})
}

// stats returns GET /api/v1/stats: the latest stats reading, or the
// placeholder with null fields while the server is unreachable.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	snap := h.state.Snapshot()
	if snap.Stats == nil {
		jsonResp(w, http.StatusOK, StatsResponse{ServerOK: false, Error: snap.StatsErr})
		return
	}

	s := snap.Stats
	count := s.ConnectionCount
	boot := s.BootTime
	uptime := s.UptimeSeconds
	jsonResp(w, http.StatusOK, StatsResponse{
		ServerOK:        true,
		ConnectionCount: &count,
		BootTime:        &boot,
		UptimeSeconds:   &uptime,
		Classes:         s.Classes,
		FetchedAt:       &s.FetchedAt,
	})
}

// listNodes returns GET /api/v1/nodes: node names per class, sorted.
func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	jsonResp(w, http.StatusOK, h.state.Nodes())
}

// getNodeClass returns GET /api/v1/nodes/{class}: the sorted names of one class.
func (h *Handler) getNodeClass(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	class := strings.TrimPrefix(r.URL.Path, "/api/v1/nodes/")
	if class == "" {
		h.listNodes(w, r)
		return
	}

	names, ok := h.state.Nodes()[class]
	if !ok {
		jsonErr(w, http.StatusNotFound, "class not found")
		return
	}
	jsonResp(w, http.StatusOK, NodeClassResponse{Class: class, Names: names})
}

// log returns GET /api/v1/log[?limit=N]: raw inbound frames, oldest first.
// With limit only the newest N are returned.
func (h *Handler) log(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	entries := h.state.Log()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}
	jsonResp(w, http.StatusOK, LogResponse{Entries: entries})
}

// snapshot returns GET /api/v1/snapshot: connection, stats and nodes in one read.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	jsonResp(w, http.StatusOK, h.state.Snapshot())
}

// --- helpers ----------------------------------------------------------------

func requireGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
