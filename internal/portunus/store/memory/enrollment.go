package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

func (s *Store) ResolveUnit(_ context.Context, unitCode string) (*types.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[strings.TrimSpace(unitCode)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) UpsertUnit(_ context.Context, unitCode, name string) (types.Unit, error) {
	unitCode = strings.TrimSpace(unitCode)
	if unitCode == "" {
		return types.Unit{}, fmt.Errorf("unit code is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitCode]
	if !ok {
		u = types.Unit{ID: s.id(), UnitCode: unitCode}
	}
	u.Name = name
	s.units[unitCode] = u
	return u, nil
}

func (s *Store) CreatePerson(_ context.Context, p types.Person) (types.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.people[p.ID] = p
	return p, nil
}

func (s *Store) EnrollTemplate(_ context.Context, t types.EnrolledTemplate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.people[t.OwnerID]
	if !ok {
		return 0, fmt.Errorf("person %d: %w", t.OwnerID, store.ErrNotFound)
	}
	for i := range s.templates {
		if s.templates[i].OwnerID == t.OwnerID && s.templates[i].Finger == t.Finger {
			s.templates[i].active = false
		}
	}
	if t.EnrolledAt.IsZero() {
		t.EnrolledAt = time.Now().UTC()
	}
	t.ID = s.id()
	t.Owner = owner
	t.Payload = append([]byte(nil), t.Payload...)
	s.templates = append(s.templates, storedTemplate{EnrolledTemplate: t, active: true})
	return t.ID, nil
}

func (s *Store) FindCandidateTemplates(_ context.Context, unitID int64, finger types.FingerType) ([]types.EnrolledTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.EnrolledTemplate
	for _, t := range s.templates {
		if !t.active || t.UnitID != unitID || t.Finger != finger {
			continue
		}
		c := t.EnrolledTemplate
		c.Payload = append([]byte(nil), t.Payload...)
		out = append(out, c)
	}
	// Newest first, like the SQL stores.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.After(out[j].EnrolledAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

var _ store.Store = (*Store)(nil)
