// Package rediscache puts a short-lived Redis cache in front of a Store's
// candidate lookup. Everything else passes straight through.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

const (
	DefaultTTL = 30 * time.Second
	keyPrefix  = "portunus:candidates:"
)

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Store wraps a backing store. A Redis failure never fails a lookup: the
// call falls through to the backing store and the error is logged.
type Store struct {
	store.Store
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func New(backing store.Store, client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Store: backing, client: client, ttl: ttl, log: logger}
}

func candidatesKey(unitID int64, finger types.FingerType) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, unitID, finger)
}

func (s *Store) FindCandidateTemplates(ctx context.Context, unitID int64, finger types.FingerType) ([]types.EnrolledTemplate, error) {
	key := candidatesKey(unitID, finger)

	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []types.EnrolledTemplate
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			return out, nil
		}
		s.log.WithField("key", key).Warn("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		s.log.WithError(err).WithField("key", key).Warn("template cache read failed")
	}

	out, err := s.Store.FindCandidateTemplates(ctx, unitID, finger)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := s.client.Set(ctx, key, b, s.ttl).Err(); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("template cache write failed")
		}
	}
	return out, nil
}

// EnrollTemplate writes through and drops the cached list for the
// template's unit and finger.
func (s *Store) EnrollTemplate(ctx context.Context, t types.EnrolledTemplate) (int64, error) {
	id, err := s.Store.EnrollTemplate(ctx, t)
	if err != nil {
		return 0, err
	}
	if err := s.client.Del(ctx, candidatesKey(t.UnitID, t.Finger)).Err(); err != nil {
		s.log.WithError(err).Warn("template cache invalidation failed")
	}
	return id, nil
}

func (s *Store) Close() error {
	cerr := s.client.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	return cerr
}

var _ store.Store = (*Store)(nil)
