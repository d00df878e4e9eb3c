// Package memory is an in-process Store for tests, simulation and the
// "memory" driver. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

type Store struct {
	mu         sync.RWMutex
	units      map[string]types.Unit
	people     map[int64]types.Person
	templates  []storedTemplate
	logs       []types.AccessLogEntry
	heartbeats []types.SensorHeartbeat
	nextID     int64
}

type storedTemplate struct {
	types.EnrolledTemplate
	active bool
}

func New() *Store {
	return &Store{
		units:  make(map[string]types.Unit),
		people: make(map[int64]types.Person),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) RecordHeartbeat(_ context.Context, hb types.SensorHeartbeat) error {
	if hb.ReceivedAt.IsZero() {
		hb.ReceivedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats = append(s.heartbeats, hb)
	return nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.heartbeats[:0]
	var deleted int64
	for _, hb := range s.heartbeats {
		if hb.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, hb)
	}
	s.heartbeats = kept
	return deleted, nil
}

// Heartbeats returns a copy of all recorded heartbeats.  Test-only helper.
func (s *Store) Heartbeats() []types.SensorHeartbeat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SensorHeartbeat, len(s.heartbeats))
	copy(out, s.heartbeats)
	return out
}
