// Package postgres is the PostgreSQL-backed Store, for deployments that
// share one enrollment database across several units.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

//go:embed schema.sql
var schemaSQL string

var (
	newPool      = pgxpool.NewWithConfig
	connectTries = 10
	retryDelay   = 2 * time.Second
	pingTimeout  = 2 * time.Second
	sleep        = time.Sleep
)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, retrying while the server comes up, and creates
// the schema if it is missing.
func Open(ctx context.Context, dsn string, logger logrus.FieldLogger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres: DATABASE_URL is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, unavailable("create schema", err)
	}
	return &Store{pool: pool}, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config, logger logrus.FieldLogger) (*pgxpool.Pool, error) {
	var lastErr error
	for i := 0; i < connectTries; i++ {
		if i > 0 {
			logger.WithError(lastErr).WithField("attempt", i+1).Warn("postgres not ready, retrying")
			sleep(retryDelay)
		}
		pool, err := newPool(ctx, cfg)
		if err != nil {
			lastErr = err
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		lastErr = err
		pool.Close()
	}
	return nil, unavailable("connect retries exhausted", lastErr)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("postgres %s: %w: %w", op, store.ErrUnavailable, err)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) FindCandidateTemplates(ctx context.Context, unitID int64, finger types.FingerType) ([]types.EnrolledTemplate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT t.id, t.person_id, t.unit_id, t.encoding, t.encrypted, t.payload, t.enrolled_at,
       p.full_name, p.national_id, p.person_type
FROM biometric_templates t
JOIN people p ON p.id = t.person_id
WHERE t.unit_id = $1 AND t.finger = $2 AND t.active
ORDER BY t.enrolled_at DESC, t.id DESC`, unitID, finger.String())
	if err != nil {
		return nil, unavailable("FindCandidateTemplates", err)
	}
	defer rows.Close()

	var out []types.EnrolledTemplate
	for rows.Next() {
		var (
			t                  types.EnrolledTemplate
			encoding, personTy string
		)
		if err := rows.Scan(
			&t.ID, &t.OwnerID, &t.UnitID, &encoding, &t.Encrypted, &t.Payload, &t.EnrolledAt,
			&t.Owner.FullName, &t.Owner.NationalID, &personTy,
		); err != nil {
			return nil, unavailable("FindCandidateTemplates scan", err)
		}
		t.Owner.ID = t.OwnerID
		t.Owner.Type = types.PersonType(personTy)
		t.Encoding = types.Encoding(encoding)
		t.Finger = finger
		t.EnrolledAt = t.EnrolledAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("FindCandidateTemplates rows", err)
	}
	return out, nil
}

func (s *Store) ResolveUnit(ctx context.Context, unitCode string) (*types.Unit, error) {
	var u types.Unit
	err := s.pool.QueryRow(ctx,
		`SELECT id, unit_code, name FROM units WHERE unit_code = $1`, strings.TrimSpace(unitCode),
	).Scan(&u.ID, &u.UnitCode, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
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
	u := types.Unit{UnitCode: unitCode, Name: name}
	err := s.pool.QueryRow(ctx, `
INSERT INTO units(unit_code, name) VALUES ($1, $2)
ON CONFLICT (unit_code) DO UPDATE SET name = excluded.name, updated_at = now()
RETURNING id`, unitCode, name).Scan(&u.ID)
	if err != nil {
		return types.Unit{}, unavailable("UpsertUnit", err)
	}
	return u, nil
}

func (s *Store) CreatePerson(ctx context.Context, p types.Person) (types.Person, error) {
	err := s.pool.QueryRow(ctx, `
INSERT INTO people(full_name, national_id, person_type) VALUES ($1, $2, $3)
RETURNING id`, p.FullName, p.NationalID, string(p.Type)).Scan(&p.ID)
	if err != nil {
		return types.Person{}, unavailable("CreatePerson", err)
	}
	return p, nil
}

func (s *Store) EnrollTemplate(ctx context.Context, t types.EnrolledTemplate) (int64, error) {
	if !t.Finger.Valid() {
		return 0, types.ErrInvalidFinger
	}
	if t.EnrolledAt.IsZero() {
		t.EnrolledAt = time.Now().UTC()
	}

	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM people WHERE id = $1)`, t.OwnerID,
		).Scan(&exists); err != nil {
			return unavailable("EnrollTemplate lookup person", err)
		}
		if !exists {
			return fmt.Errorf("person %d: %w", t.OwnerID, store.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `
UPDATE biometric_templates SET active = FALSE
WHERE person_id = $1 AND finger = $2 AND active`, t.OwnerID, t.Finger.String()); err != nil {
			return unavailable("EnrollTemplate deactivate", err)
		}
		if err := tx.QueryRow(ctx, `
INSERT INTO biometric_templates(person_id, unit_id, finger, encoding, encrypted, payload, active, enrolled_at)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
RETURNING id`,
			t.OwnerID, t.UnitID, t.Finger.String(), string(t.Encoding), t.Encrypted, t.Payload, t.EnrolledAt.UTC(),
		).Scan(&id); err != nil {
			return unavailable("EnrollTemplate insert", err)
		}
		return nil
	})
	return id, err
}

func (s *Store) AppendAccessLog(ctx context.Context, e types.AccessLogEntry) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var errText *string
	if e.Error != "" {
		errText = &e.Error
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO access_log(
  query_id, person_id, unit_id, device_id, decision,
  verified_by_core, error, requested_at, accessed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`,
		e.QueryID, e.PersonID, e.UnitID, e.DeviceID, string(e.Decision),
		e.VerifiedByCore, errText, e.RequestedAt, e.Timestamp.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, unavailable("AppendAccessLog", err)
	}
	return id, nil
}

func (s *Store) RecordHeartbeat(ctx context.Context, hb types.SensorHeartbeat) error {
	if hb.ReceivedAt.IsZero() {
		hb.ReceivedAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO sensor_heartbeats(device_id, unit_id, port, received_at) VALUES ($1, $2, $3, $4)`,
		hb.DeviceID, hb.UnitID, hb.Port, hb.ReceivedAt.UTC(),
	); err != nil {
		return unavailable("RecordHeartbeat", err)
	}
	return nil
}

func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sensor_heartbeats WHERE received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, unavailable("PruneOlderThan", err)
	}
	return tag.RowsAffected(), nil
}

var _ store.Store = (*Store)(nil)
