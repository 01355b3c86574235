package server

import (
	"strconv"
	"sync"
	"time"
)

// Stats tracks request counters served by the metrics endpoint. All
// methods are safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	started  time.Time
	routes   map[string]uint64
	statuses map[int]uint64
	total    uint64
}

// NewStats creates counters with the start time set to now.
func NewStats() *Stats {
	return &Stats{
		started:  time.Now(),
		routes:   make(map[string]uint64),
		statuses: make(map[int]uint64),
	}
}

// RecordRoute counts one request against its route pattern.
func (s *Stats) RecordRoute(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route]++
	s.total++
}

// RecordStatus counts one response by status code.
func (s *Stats) RecordStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status]++
}

// Uptime reports how long the counters have been running.
func (s *Stats) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.started)
}

// Requests reports the total number of requests handled.
func (s *Stats) Requests() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Errors reports how many requests answered with a server error.
func (s *Stats) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint64
	for status, count := range s.statuses {
		if status >= 500 {
			n += count
		}
	}
	return n
}

// Snapshot is a point-in-time copy of the counters. Status codes are
// keyed as strings, ready for use as label values.
type Snapshot struct {
	Started  time.Time
	Total    uint64
	Routes   map[string]uint64
	Statuses map[string]uint64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Started:  s.started,
		Total:    s.total,
		Routes:   make(map[string]uint64, len(s.routes)),
		Statuses: make(map[string]uint64, len(s.statuses)),
	}
	for route, count := range s.routes {
		snap.Routes[route] = count
	}
	for status, count := range s.statuses {
		snap.Statuses[strconv.Itoa(status)] = count
	}
	return snap
}
