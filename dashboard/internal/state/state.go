package state

import (
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hopdash/hopdash/dashboard/internal/stats"
)

// Connection states reported to the UI.
const (
	Connecting   = "connecting"
	Connected    = "connected"
	Disconnected = "disconnected"
)

// Connection describes the tap session.
type Connection struct {
	State     string    `json:"state"`
	SelfID    string    `json:"self_id,omitempty"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error,omitempty"`
}

// LogEntry is one raw inbound frame kept for the debug view.
type LogEntry struct {
	ReceivedAt time.Time       `json:"received_at"`
	Frame      json.RawMessage `json:"frame"`
}

// Snapshot is a consistent copy of the dashboard state.
type Snapshot struct {
	Connection Connection `json:"connection"`

	// ServerOK is false and Stats nil while the stats are unavailable.
	ServerOK bool         `json:"server_ok"`
	Stats    *stats.Stats `json:"stats"`
	StatsErr string       `json:"stats_error,omitempty"`

	Nodes       map[string][]string `json:"nodes"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Store is the thread-safe dashboard state. It implements stats.Sink and
// nodes.Sink.
type Store struct {
	mu       sync.RWMutex
	conn     Connection
	stats    *stats.Stats
	statsErr string
	nodes    map[string]map[string]struct{}

	// log is a ring of at most logSize entries; logNext is the slot the next
	// entry goes into once the ring is full.
	log     []LogEntry
	logSize int
	logNext int

	now func() time.Time // injectable for deterministic tests
}

// New creates a Store that keeps the last logSize inbound frames.
func New(logSize int) *Store {
	if logSize < 1 {
		logSize = 1
	}
	s := &Store{
		nodes:   make(map[string]map[string]struct{}),
		logSize: logSize,
		now:     time.Now,
	}
	s.conn = Connection{State: Connecting, Since: s.now().UTC()}
	return s
}

// SetConnected records an open tap session.
func (s *Store) SetConnected(selfID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = Connection{State: Connected, SelfID: selfID, Since: s.now().UTC()}
}

// SetDisconnected records a lost tap session. The stats go back to the
// unavailable placeholder until the next successful refresh.
func (s *Store) SetDisconnected(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = Connection{State: Disconnected, Since: s.now().UTC()}
	if cause != nil {
		s.conn.LastError = cause.Error()
	}
	s.stats = nil
	s.statsErr = "disconnected"
}

// Connection returns the current session state.
func (s *Store) Connection() Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// SetStats stores a fresh stats reading.
func (s *Store) SetStats(st stats.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Classes = slices.Clone(st.Classes)
	s.stats = &st
	s.statsErr = ""
}

// StatsUnavailable drops the current reading.
func (s *Store) StatsUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = nil
	s.statsErr = "unavailable"
	if err != nil {
		s.statsErr = err.Error()
	}
}

// Stats returns a copy of the current reading and whether there is one.
func (s *Store) Stats() (stats.Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		return stats.Stats{}, false
	}
	return copyStats(s.stats), true
}

// ReplaceNodes swaps the whole node set.
func (s *Store) ReplaceNodes(byClass map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]map[string]struct{}, len(byClass))
	for class, names := range byClass {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		s.nodes[class] = set
	}
}

// NodeBound adds name under class.
func (s *Store) NodeBound(class, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.nodes[class]
	if !ok {
		set = make(map[string]struct{})
		s.nodes[class] = set
	}
	set[name] = struct{}{}
}

// NodeUnbound removes name from class. Unknown classes are ignored; the class
// itself stays listed even when it becomes empty.
func (s *Store) NodeUnbound(class, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.nodes[class]; ok {
		delete(set, name)
	}
}

// Nodes returns the node names per class, each list sorted.
func (s *Store) Nodes() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesLocked()
}

func (s *Store) nodesLocked() map[string][]string {
	out := make(map[string][]string, len(s.nodes))
	for class, set := range s.nodes {
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		sort.Strings(names)
		out[class] = names
	}
	return out
}

// AppendLog adds one raw inbound frame to the debug ring, evicting the oldest
// entry when full, and returns the stored entry.
func (s *Store) AppendLog(raw []byte) LogEntry {
	entry := LogEntry{Frame: append(json.RawMessage(nil), raw...)}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ReceivedAt = s.now().UTC()
	if len(s.log) < s.logSize {
		s.log = append(s.log, entry)
		return entry
	}
	s.log[s.logNext] = entry
	s.logNext = (s.logNext + 1) % s.logSize
	return entry
}

// Log returns the debug ring oldest first.
func (s *Store) Log() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, 0, len(s.log))
	out = append(out, s.log[s.logNext:]...)
	out = append(out, s.log[:s.logNext]...)
	return out
}

// Snapshot returns the connection, stats and nodes in one consistent read.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Connection:  s.conn,
		ServerOK:    s.stats != nil,
		StatsErr:    s.statsErr,
		Nodes:       s.nodesLocked(),
		GeneratedAt: s.now().UTC(),
	}
	if s.stats != nil {
		st := copyStats(s.stats)
		snap.Stats = &st
	}
	return snap
}

func copyStats(st *stats.Stats) stats.Stats {
	out := *st
	out.Classes = slices.Clone(st.Classes)
	return out
}
