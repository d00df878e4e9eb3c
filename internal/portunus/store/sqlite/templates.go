package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

func (s *Store) FindCandidateTemplates(ctx context.Context, unitID int64, finger types.FingerType) ([]types.EnrolledTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.id, t.person_id, t.unit_id, t.encoding, t.encrypted, t.payload, t.enrolled_at_ms,
       p.full_name, p.national_id, p.person_type
FROM biometric_templates t
JOIN people p ON p.id = t.person_id
WHERE t.unit_id = ? AND t.finger = ? AND t.active = 1
ORDER BY t.enrolled_at_ms DESC, t.id DESC;
`, unitID, finger.String())
	if err != nil {
		return nil, unavailable("FindCandidateTemplates", err)
	}
	defer rows.Close()

	var out []types.EnrolledTemplate
	for rows.Next() {
		var (
			t          types.EnrolledTemplate
			encrypted  int
			enrolledMs int64
		)
		if err := rows.Scan(
			&t.ID, &t.OwnerID, &t.UnitID, &t.Encoding, &encrypted, &t.Payload, &enrolledMs,
			&t.Owner.FullName, &t.Owner.NationalID, &t.Owner.Type,
		); err != nil {
			return nil, unavailable("FindCandidateTemplates scan", err)
		}
		t.Owner.ID = t.OwnerID
		t.Finger = finger
		t.Encrypted = encrypted != 0
		t.EnrolledAt = time.UnixMilli(enrolledMs).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("FindCandidateTemplates rows", err)
	}
	return out, nil
}

// EnrollTemplate deactivates the owner's current template for the finger
// and inserts t as the active one, in one transaction.
func (s *Store) EnrollTemplate(ctx context.Context, t types.EnrolledTemplate) (int64, error) {
	if !t.Finger.Valid() {
		return 0, types.ErrInvalidFinger
	}
	if t.EnrolledAt.IsZero() {
		t.EnrolledAt = time.Now().UTC()
	}
	enrolledMs := t.EnrolledAt.UTC().UnixMilli()

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM people WHERE id = ?;`, t.OwnerID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("person %d: %w", t.OwnerID, store.ErrNotFound)
		}
		if err != nil {
			return unavailable("EnrollTemplate lookup person", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE biometric_templates SET active = 0
WHERE person_id = ? AND finger = ? AND active = 1;
`, t.OwnerID, t.Finger.String()); err != nil {
			return unavailable("EnrollTemplate deactivate", err)
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO biometric_templates(person_id, unit_id, finger, encoding, encrypted, payload, active, enrolled_at_ms)
VALUES (?, ?, ?, ?, ?, ?, 1, ?);
`, t.OwnerID, t.UnitID, t.Finger.String(), string(t.Encoding), boolInt(t.Encrypted), t.Payload, enrolledMs)
		if err != nil {
			return unavailable("EnrollTemplate insert", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}
