package service

import (
	"errors"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/codec"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/match"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

var (
	ErrMissingTemplate = errors.New("template data is required")
	// ErrInternal wraps a panic recovered inside a decision cycle.
	ErrInternal = errors.New("internal error")
)

type errorClass int

const (
	classInput errorClass = iota
	classInfrastructure
)

func (c errorClass) String() string {
	if c == classInput {
		return "input"
	}
	return "infrastructure"
}

// classify splits faults into bad readings and systemic trouble.
// Anything not recognised as an input problem counts as infrastructure.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, ErrMissingTemplate),
		errors.Is(err, types.ErrInvalidFinger),
		errors.Is(err, codec.ErrInvalidEncoding),
		errors.Is(err, codec.ErrMalformedVector),
		errors.Is(err, match.ErrDimensionMismatch):
		return classInput
	}
	return classInfrastructure
}
