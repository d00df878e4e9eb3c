package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

func (s *Store) RecordHeartbeat(ctx context.Context, hb types.SensorHeartbeat) error {
	if hb.ReceivedAt.IsZero() {
		hb.ReceivedAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sensor_heartbeats(device_id, unit_id, port, received_at_ms)
VALUES (?, ?, ?, ?);
`, hb.DeviceID, hb.UnitID, hb.Port, hb.ReceivedAt.UTC().UnixMilli()); err != nil {
			return unavailable("RecordHeartbeat", err)
		}
		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before cutoff and
// returns how many went.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM sensor_heartbeats WHERE received_at_ms < ?;
`, cutoff.UTC().UnixMilli())
		if err != nil {
			return unavailable("PruneOlderThan", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
