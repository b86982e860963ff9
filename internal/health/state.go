// Package health holds the process-wide readiness and liveness flags that
// back the probe endpoints.
package health

import "sync"

// Snapshot is a consistent view of both flags taken under a single lock.
type Snapshot struct {
	Ready bool `json:"ready"`
	Alive bool `json:"alive"`
}

// State owns the readiness and liveness flags. The two flags are independent:
// toggling one never affects the other. A State must not be copied after
// first use.
type State struct {
	mu    sync.Mutex
	ready bool
	alive bool
}

// NewState returns a State with both flags set, which is how a process starts.
func NewState() *State {
	return &State{
		ready: true,
		alive: true,
	}
}

// Ready reports whether the process should receive traffic.
func (s *State) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Alive reports whether the process should be left running.
func (s *State) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// ToggleReadiness flips the readiness flag and returns its new value.
func (s *State) ToggleReadiness() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = !s.ready
	return s.ready
}

// ToggleLiveness flips the liveness flag and returns its new value.
func (s *State) ToggleLiveness() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = !s.alive
	return s.alive
}

// Snapshot returns both flags as observed at the same instant.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Ready: s.ready, Alive: s.alive}
}
