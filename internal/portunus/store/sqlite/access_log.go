package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// AppendAccessLog inserts one audit row. Rows are never updated.
func (s *Store) AppendAccessLog(ctx context.Context, e types.AccessLogEntry) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var personID any
	if e.PersonID != nil {
		personID = *e.PersonID
	}
	var requestedMs any
	if e.RequestedAt != nil {
		requestedMs = e.RequestedAt.UTC().UnixMilli()
	}
	var errText any
	if e.Error != "" {
		errText = e.Error
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO access_log(
  query_id, person_id, unit_id, device_id, decision,
  verified_by_core, error, requested_at_ms, accessed_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.QueryID, personID, e.UnitID, e.DeviceID, string(e.Decision),
			boolInt(e.VerifiedByCore), errText, requestedMs, e.Timestamp.UTC().UnixMilli(),
		)
		if err != nil {
			return unavailable("AppendAccessLog", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}
