package service

import (
	"sync/atomic"
	"time"
)

// State is process-wide information shared by the gateway and the liveness endpoint.
type State struct {
	StartedAt time.Time

	connections atomic.Int64
	now         func() time.Time
}

func NewState() *State {
	return &State{StartedAt: time.Now(), now: time.Now}
}

// Connect records a new live gateway connection.
func (s *State) Connect() {
	s.connections.Add(1)
}

// Disconnect records a lost gateway connection. The counter never drops below zero.
func (s *State) Disconnect() {
	for {
		n := s.connections.Load()
		if n <= 0 {
			return
		}
		if s.connections.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (s *State) Connected() int64 {
	return s.connections.Load()
}

func (s *State) Uptime() time.Duration {
	return s.now().Sub(s.StartedAt)
}
