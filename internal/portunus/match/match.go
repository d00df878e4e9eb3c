// Package match compares a presented template against enrolled candidates.
//
// Two strategies are provided. Exact compares decrypted payload bytes and
// only suits deterministic (or simulated) sensors. Similarity parses both
// sides as numeric feature vectors and accepts the best cosine score at or
// above a threshold.
package match

import (
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/templatecrypt"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// DefaultThreshold is the similarity score a candidate must reach.
const DefaultThreshold = 0.85

var ErrDimensionMismatch = errors.New("template vector dimension mismatch")

// Decrypter opens encrypted template payloads. *templatecrypt.Key
// satisfies it.
type Decrypter interface {
	Decrypt(blob []byte) ([]byte, error)
}

// Matcher is the strategy interface the decision engine calls.
type Matcher interface {
	Strategy() types.Strategy
	Match(presented types.PresentedTemplate, candidates []types.EnrolledTemplate) (types.MatchResult, error)
}

// New returns the matcher for strategy. threshold is only used by the
// similarity strategy; zero selects DefaultThreshold.
func New(strategy types.Strategy, threshold float64, dec Decrypter) (Matcher, error) {
	switch strategy {
	case types.StrategyExact, "":
		return NewExact(dec), nil
	case types.StrategySimilarity:
		return NewSimilarity(threshold, dec)
	}
	return nil, fmt.Errorf("unknown match strategy %q", strategy)
}

type candidate struct {
	owner   types.Person
	ownerID int64
	finger  types.FingerType
	enc     types.Encoding
	payload []byte
}

// prepare keeps the first template per (owner, finger), drops templates
// for other fingers, and decrypts what is left.
func prepare(finger types.FingerType, candidates []types.EnrolledTemplate, dec Decrypter) ([]candidate, error) {
	type key struct {
		owner  int64
		finger types.FingerType
	}
	seen := make(map[key]struct{}, len(candidates))
	out := make([]candidate, 0, len(candidates))

	for _, c := range candidates {
		k := key{c.OwnerID, c.Finger}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		if c.Finger != finger {
			continue
		}

		payload := c.Payload
		if c.Encrypted {
			if dec == nil {
				return nil, fmt.Errorf("%w: template %d is encrypted and no key is configured",
					templatecrypt.ErrCrypto, c.ID)
			}
			p, err := dec.Decrypt(c.Payload)
			if err != nil {
				return nil, fmt.Errorf("decrypt template %d: %w", c.ID, err)
			}
			payload = p
		}

		owner := c.Owner
		if owner.ID == 0 {
			owner.ID = c.OwnerID
		}
		out = append(out, candidate{
			owner:   owner,
			ownerID: c.OwnerID,
			finger:  c.Finger,
			enc:     c.Encoding,
			payload: payload,
		})
	}
	return out, nil
}

func matched(c candidate, score float64, s types.Strategy) types.MatchResult {
	p := c.owner
	return types.MatchResult{
		Matched:  true,
		Person:   &p,
		Finger:   c.finger,
		Score:    score,
		Strategy: s,
	}
}
