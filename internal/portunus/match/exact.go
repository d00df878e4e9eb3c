package match

import (
	"crypto/subtle"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// Exact matches iff finger and decrypted payload bytes are identical.
type Exact struct {
	dec Decrypter
}

func NewExact(dec Decrypter) *Exact {
	return &Exact{dec: dec}
}

func (m *Exact) Strategy() types.Strategy { return types.StrategyExact }

func (m *Exact) Match(presented types.PresentedTemplate, candidates []types.EnrolledTemplate) (types.MatchResult, error) {
	res := types.MatchResult{Strategy: types.StrategyExact, Finger: presented.Finger}

	cs, err := prepare(presented.Finger, candidates, m.dec)
	if err != nil {
		return res, err
	}

	var best *candidate
	for i := range cs {
		c := &cs[i]
		if len(c.payload) != len(presented.Payload) ||
			subtle.ConstantTimeCompare(c.payload, presented.Payload) != 1 {
			continue
		}
		if best == nil || c.ownerID < best.ownerID {
			best = c
		}
	}
	if best == nil {
		return res, nil
	}
	return matched(*best, 1.0, types.StrategyExact), nil
}
