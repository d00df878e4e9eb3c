package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// ErrUnavailable marks a storage call that failed for infrastructure
// reasons (connection lost, database locked, timeout).
var ErrUnavailable = errors.New("storage unavailable")

// ErrNotFound is returned by lookups that need a row to exist.
var ErrNotFound = errors.New("not found")

// TemplateStore returns the active templates enrolled at a unit for one
// finger, most recently enrolled first.
type TemplateStore interface {
	FindCandidateTemplates(ctx context.Context, unitID int64, finger types.FingerType) ([]types.EnrolledTemplate, error)
}

// UnitStore resolves a unit code. It returns (nil, nil) when the code is
// not configured.
type UnitStore interface {
	ResolveUnit(ctx context.Context, unitCode string) (*types.Unit, error)
}

// AccessLogStore persists decisions as an append-only audit log.
type AccessLogStore interface {
	AppendAccessLog(ctx context.Context, entry types.AccessLogEntry) (int64, error)
}

// EnrollmentStore writes the records the decision engine later reads.
type EnrollmentStore interface {
	UpsertUnit(ctx context.Context, unitCode, name string) (types.Unit, error)
	CreatePerson(ctx context.Context, p types.Person) (types.Person, error)
	// EnrollTemplate stores t as the active template for (t.OwnerID,
	// t.Finger), deactivating any previous one.
	EnrollTemplate(ctx context.Context, t types.EnrolledTemplate) (int64, error)
}

type HeartbeatStore interface {
	RecordHeartbeat(ctx context.Context, hb types.SensorHeartbeat) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is everything a backend provides.
type Store interface {
	TemplateStore
	UnitStore
	AccessLogStore
	EnrollmentStore
	HeartbeatStore
	Pinger
	Close() error
}
