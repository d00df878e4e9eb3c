package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

var ErrUnknownUnit = errors.New("unit is not configured")

// FallbackUnitID and FallbackUnitName describe the unit used in dev when
// the configured code has no row.
const (
	FallbackUnitID   int64 = 1
	FallbackUnitName       = "Default Unit"
)

// UnitRegistry resolves the unit this process serves, once, at start-up.
type UnitRegistry struct {
	store         store.UnitStore
	allowFallback bool
	log           logrus.FieldLogger
}

func NewUnitRegistry(st store.UnitStore, allowFallback bool, logger logrus.FieldLogger) *UnitRegistry {
	return &UnitRegistry{store: st, allowFallback: allowFallback, log: logger}
}

func (r *UnitRegistry) Resolve(ctx context.Context, code string) (types.Unit, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return types.Unit{}, fmt.Errorf("%w: empty unit code", ErrUnknownUnit)
	}

	u, err := r.store.ResolveUnit(ctx, code)
	if err != nil {
		return types.Unit{}, fmt.Errorf("resolve unit %s: %w", code, err)
	}
	if u != nil {
		return *u, nil
	}

	if !r.allowFallback {
		return types.Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, code)
	}
	r.log.WithField("unit_code", code).Warn("unit not found, using default unit")
	return types.Unit{ID: FallbackUnitID, UnitCode: code, Name: FallbackUnitName}, nil
}
