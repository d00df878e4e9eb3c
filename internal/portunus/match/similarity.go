package match

import (
	"fmt"
	"math"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/codec"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// Similarity accepts the candidate with the highest cosine similarity at
// or above Threshold. Ties go to the lowest owner id.
type Similarity struct {
	Threshold float64
	dec       Decrypter
}

func NewSimilarity(threshold float64, dec Decrypter) (*Similarity, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("similarity threshold %v is outside (0, 1]", threshold)
	}
	return &Similarity{Threshold: threshold, dec: dec}, nil
}

func (m *Similarity) Strategy() types.Strategy { return types.StrategySimilarity }

func (m *Similarity) Match(presented types.PresentedTemplate, candidates []types.EnrolledTemplate) (types.MatchResult, error) {
	res := types.MatchResult{Strategy: types.StrategySimilarity, Finger: presented.Finger}

	probe := presented.Vector
	if probe == nil {
		v, err := codec.ToVector(presented.Payload)
		if err != nil {
			return res, err
		}
		probe = v
	}

	cs, err := prepare(presented.Finger, candidates, m.dec)
	if err != nil {
		return res, err
	}

	var (
		best      *candidate
		bestScore float64
		compared  bool
	)
	for i := range cs {
		c := &cs[i]
		if c.enc != types.EncodingNumericVector {
			continue
		}
		vec, err := codec.ToVector(c.payload)
		if err != nil {
			return res, fmt.Errorf("enrolled template for owner %d: %w", c.ownerID, err)
		}
		score, err := Cosine(probe, vec)
		if err != nil {
			return res, err
		}
		if !compared || score > res.Score {
			res.Score, compared = score, true
		}
		// Written so a NaN score can never pass.
		if !(score >= m.Threshold) {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && c.ownerID < best.ownerID) {
			best, bestScore = c, score
		}
	}
	if best == nil {
		return res, nil
	}
	return matched(*best, bestScore, types.StrategySimilarity), nil
}

// Cosine returns dot(a, b) / (|a| * |b|), clamped to [-1, 1]. A vector
// compared with itself scores exactly 1, including the zero vector; any
// other pair involving a zero-magnitude vector scores 0. Each vector is
// scaled by its largest magnitude first, so finite inputs of any size
// cannot overflow. A result that is still not finite scores 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty vectors", ErrDimensionMismatch)
	}

	same := true
	var maxA, maxB float64
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
		maxA = math.Max(maxA, math.Abs(a[i]))
		maxB = math.Max(maxB, math.Abs(b[i]))
	}
	if same {
		return 1, nil
	}
	if maxA == 0 || maxB == 0 || math.IsInf(maxA, 0) || math.IsInf(maxB, 0) ||
		math.IsNaN(maxA) || math.IsNaN(maxB) {
		return 0, nil
	}

	var dot, na, nb float64
	for i := range a {
		x, y := a[i]/maxA, b[i]/maxB
		dot += x * y
		na += x * x
		nb += y * y
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, nil
	}
	return math.Max(-1, math.Min(1, score)), nil
}
