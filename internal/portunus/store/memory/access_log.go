package memory

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

func (s *Store) AppendAccessLog(_ context.Context, e types.AccessLogEntry) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return int64(len(s.logs)), nil
}

// AccessLogs returns a copy of all recorded entries.  Test-only helper.
func (s *Store) AccessLogs() []types.AccessLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AccessLogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}
