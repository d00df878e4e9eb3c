package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

func (s *Store) ResolveUnit(ctx context.Context, unitCode string) (*types.Unit, error) {
	var u types.Unit
	err := s.db.QueryRowContext(ctx, `
SELECT id, unit_code, name FROM units WHERE unit_code = ?;
`, strings.TrimSpace(unitCode)).Scan(&u.ID, &u.UnitCode, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("ResolveUnit", err)
	}
	return &u, nil
}

func (s *Store) UpsertUnit(ctx context.Context, unitCode, name string) (types.Unit, error) {
	unitCode = strings.TrimSpace(unitCode)
	if unitCode == "" {
		return types.Unit{}, fmt.Errorf("unit code is required")
	}
	now := time.Now().UTC().UnixMilli()

	u := types.Unit{UnitCode: unitCode, Name: name}
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO units(unit_code, name, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(unit_code) DO UPDATE SET
  name = excluded.name,
  updated_at_ms = excluded.updated_at_ms;
`, unitCode, name, now, now); err != nil {
			return unavailable("UpsertUnit", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM units WHERE unit_code = ?;`, unitCode).Scan(&u.ID); err != nil {
			return unavailable("UpsertUnit read id", err)
		}
		return nil
	})
	return u, err
}

func (s *Store) CreatePerson(ctx context.Context, p types.Person) (types.Person, error) {
	now := time.Now().UTC().UnixMilli()
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO people(full_name, national_id, person_type, created_at_ms)
VALUES (?, ?, ?, ?);
`, p.FullName, p.NationalID, string(p.Type), now)
		if err != nil {
			return unavailable("CreatePerson", err)
		}
		p.ID, err = res.LastInsertId()
		return err
	})
	return p, err
}
