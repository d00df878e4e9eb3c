package match_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/codec"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/match"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/templatecrypt"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

func testKey(t *testing.T) *templatecrypt.Key {
	t.Helper()
	k, err := templatecrypt.NewKey(bytes.Repeat([]byte{0x42}, templatecrypt.KeySize))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	t.Cleanup(k.Close)
	return k
}

func enrolled(t *testing.T, k *templatecrypt.Key, ownerID int64, finger types.FingerType, enc types.Encoding, payload []byte) types.EnrolledTemplate {
	t.Helper()
	blob, err := k.Encrypt(payload)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return types.EnrolledTemplate{
		ID:        ownerID * 10,
		OwnerID:   ownerID,
		Owner:     types.Person{ID: ownerID, FullName: "Person", Type: types.PersonStudent},
		Finger:    finger,
		Payload:   blob,
		Encoding:  enc,
		Encrypted: true,
	}
}

// ── Exact ────────────────────────────────────────────────────────────────────

func TestExact_MatchesEveryFinger(t *testing.T) {
	k := testKey(t)
	m := match.NewExact(k)

	for _, f := range types.AllFingers() {
		cands := []types.EnrolledTemplate{enrolled(t, k, 7, f, types.EncodingRawBytes, []byte("Test"))}

		res, err := m.Match(types.PresentedTemplate{Finger: f, Payload: []byte("Test")}, cands)
		if err != nil {
			t.Fatalf("%s: Match: %v", f, err)
		}
		if !res.Matched || res.Person == nil || res.Person.ID != 7 {
			t.Errorf("%s: expected match for owner 7, got %+v", f, res)
		}
		if res.Score != 1 {
			t.Errorf("%s: expected score 1, got %v", f, res.Score)
		}

		for _, other := range types.AllFingers() {
			if other == f {
				continue
			}
			res, err := m.Match(types.PresentedTemplate{Finger: other, Payload: []byte("Test")}, cands)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if res.Matched || res.Person != nil {
				t.Errorf("enrolled %s, presented %s: expected no match", f, other)
			}
		}
	}
}

func TestExact_DifferentBytesNoMatch(t *testing.T) {
	k := testKey(t)
	m := match.NewExact(k)
	cands := []types.EnrolledTemplate{enrolled(t, k, 1, types.IndexRight, types.EncodingRawBytes, []byte("Test"))}

	for _, p := range [][]byte{[]byte("Tes"), []byte("Test "), []byte("test")} {
		res, err := m.Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: p}, cands)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if res.Matched {
			t.Errorf("payload %q: expected no match", p)
		}
	}
}

func TestExact_NoCandidates(t *testing.T) {
	res, err := match.NewExact(nil).Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: []byte("Test")}, nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched || res.Person != nil {
		t.Error("expected no match for empty candidate set")
	}
	if res.Strategy != types.StrategyExact {
		t.Errorf("strategy = %q", res.Strategy)
	}
}

func TestExact_LowestOwnerWins(t *testing.T) {
	k := testKey(t)
	cands := []types.EnrolledTemplate{
		enrolled(t, k, 9, types.IndexRight, types.EncodingRawBytes, []byte("Test")),
		enrolled(t, k, 3, types.IndexRight, types.EncodingRawBytes, []byte("Test")),
		enrolled(t, k, 5, types.IndexRight, types.EncodingRawBytes, []byte("Test")),
	}
	res, err := match.NewExact(k).Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: []byte("Test")}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !res.Matched || res.Person.ID != 3 {
		t.Errorf("expected owner 3, got %+v", res.Person)
	}
}

func TestExact_OnlyFirstTemplatePerOwnerFinger(t *testing.T) {
	k := testKey(t)
	cands := []types.EnrolledTemplate{
		enrolled(t, k, 1, types.IndexRight, types.EncodingRawBytes, []byte("current")),
		enrolled(t, k, 1, types.IndexRight, types.EncodingRawBytes, []byte("superseded")),
	}
	res, err := match.NewExact(k).Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: []byte("superseded")}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched {
		t.Error("a second template for the same owner and finger must not be considered")
	}
}

func TestExact_PlaintextCandidate(t *testing.T) {
	cands := []types.EnrolledTemplate{{OwnerID: 4, Finger: types.ThumbLeft, Payload: []byte("Test"), Encoding: types.EncodingRawBytes}}
	res, err := match.NewExact(nil).Match(types.PresentedTemplate{Finger: types.ThumbLeft, Payload: []byte("Test")}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !res.Matched || res.Person.ID != 4 {
		t.Errorf("expected owner 4 (id filled from owner_id), got %+v", res.Person)
	}
}

func TestExact_TamperedCandidateIsCryptoError(t *testing.T) {
	k := testKey(t)
	c := enrolled(t, k, 1, types.IndexRight, types.EncodingRawBytes, []byte("Test"))
	c.Payload[len(c.Payload)-1] ^= 0xff

	_, err := match.NewExact(k).Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: []byte("Test")}, []types.EnrolledTemplate{c})
	if !errors.Is(err, templatecrypt.ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
}

func TestExact_EncryptedWithoutKey(t *testing.T) {
	k := testKey(t)
	c := enrolled(t, k, 1, types.IndexRight, types.EncodingRawBytes, []byte("Test"))
	_, err := match.NewExact(nil).Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: []byte("Test")}, []types.EnrolledTemplate{c})
	if !errors.Is(err, templatecrypt.ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
}

// ── Similarity ───────────────────────────────────────────────────────────────

func TestCosine_SelfIsOne(t *testing.T) {
	vectors := [][]float64{
		{1},
		{0.1, 0.2, 0.3},
		{-3.7, 1e-7, 42, 0.333333333},
		{1e150, -1e150, 3},
		{0, 0, 0},
		{math.MaxFloat64, -math.MaxFloat64},
	}
	for _, v := range vectors {
		s, err := match.Cosine(v, v)
		if err != nil {
			t.Fatalf("Cosine: %v", err)
		}
		if s != 1.0 {
			t.Errorf("Cosine(%v, self) = %v, want exactly 1", v, s)
		}
	}
}

func TestCosine_Values(t *testing.T) {
	cases := []struct {
		a, b []float64
		want float64
	}{
		{[]float64{1, 0}, []float64{0, 1}, 0},
		{[]float64{1, 0}, []float64{-1, 0}, -1},
		{[]float64{1, 1}, []float64{2, 2}, 1},
		{[]float64{1, 0}, []float64{1, 1}, 1 / math.Sqrt2},
		{[]float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tc := range cases {
		got, err := match.Cosine(tc.a, tc.b)
		if err != nil {
			t.Fatalf("Cosine: %v", err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCosine_HugeComponentsStayFinite(t *testing.T) {
	cases := []struct {
		a, b []float64
		want float64
	}{
		{[]float64{1.7e308, 1.7e308, 1.7e308, -1.7e308}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{[]float64{math.MaxFloat64, 0}, []float64{0, math.MaxFloat64}, 0},
		{[]float64{1e308, 1e308}, []float64{-1e308, -1e308}, -1},
		{[]float64{1e-320, 1e-320}, []float64{3, 3}, 1},
	}
	for _, tc := range cases {
		got, err := match.Cosine(tc.a, tc.b)
		if err != nil {
			t.Fatalf("Cosine: %v", err)
		}
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("Cosine(%v, %v) = %v, want a finite score", tc.a, tc.b, got)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSimilarity_OverflowingProbeIsNotGranted(t *testing.T) {
	k := testKey(t)
	cands := []types.EnrolledTemplate{
		enrolled(t, k, 1, types.IndexRight, types.EncodingNumericVector, codec.FromVector([]float64{0.5, 0.5, 0.5, 0.5})),
	}
	m, err := match.NewSimilarity(0.85, k)
	if err != nil {
		t.Fatalf("NewSimilarity: %v", err)
	}

	probe := []byte("1.7e308,1.7e308,1.7e308,-1.7e308")
	res, err := m.Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: probe}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched || res.Person != nil {
		t.Fatalf("expected no match, got %+v", res)
	}
	if math.IsNaN(res.Score) {
		t.Errorf("score is NaN")
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	if _, err := match.Cosine([]float64{1, 2}, []float64{1, 2, 3}); !errors.Is(err, match.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSimilarity_SelfMatchesAtAnyThreshold(t *testing.T) {
	k := testKey(t)
	vec := []float64{0.12, 0.98, -0.4, 0.05}
	payload := codec.FromVector(vec)
	cands := []types.EnrolledTemplate{enrolled(t, k, 2, types.MiddleRight, types.EncodingNumericVector, payload)}

	for _, th := range []float64{0.01, 0.5, 0.85, 0.999999, 1.0} {
		m, err := match.NewSimilarity(th, k)
		if err != nil {
			t.Fatalf("NewSimilarity(%v): %v", th, err)
		}
		res, err := m.Match(types.PresentedTemplate{Finger: types.MiddleRight, Payload: payload}, cands)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if !res.Matched || res.Score != 1.0 {
			t.Errorf("threshold %v: expected match with score 1, got %+v", th, res)
		}
	}
}

func TestSimilarity_BestScoreWins(t *testing.T) {
	k := testKey(t)
	probe := []float64{1, 0, 0}
	cands := []types.EnrolledTemplate{
		enrolled(t, k, 1, types.IndexLeft, types.EncodingNumericVector, codec.FromVector([]float64{0.9, 0.3, 0})),  // ~0.949
		enrolled(t, k, 2, types.IndexLeft, types.EncodingNumericVector, codec.FromVector([]float64{0.99, 0.1, 0})), // ~0.995
		enrolled(t, k, 3, types.IndexLeft, types.EncodingNumericVector, codec.FromVector([]float64{0, 1, 0})),      // 0
	}
	m, _ := match.NewSimilarity(0.85, k)
	res, err := m.Match(types.PresentedTemplate{Finger: types.IndexLeft, Vector: probe}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !res.Matched || res.Person.ID != 2 {
		t.Errorf("expected owner 2 (highest score), got %+v", res.Person)
	}
}

func TestSimilarity_TieGoesToLowestOwner(t *testing.T) {
	k := testKey(t)
	payload := codec.FromVector([]float64{0.6, 0.8})
	cands := []types.EnrolledTemplate{
		enrolled(t, k, 8, types.RingLeft, types.EncodingNumericVector, payload),
		enrolled(t, k, 4, types.RingLeft, types.EncodingNumericVector, payload),
	}
	m, _ := match.NewSimilarity(0.85, k)
	res, err := m.Match(types.PresentedTemplate{Finger: types.RingLeft, Vector: []float64{0.6, 0.8}}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !res.Matched || res.Person.ID != 4 {
		t.Errorf("expected owner 4, got %+v", res.Person)
	}
}

func TestSimilarity_BelowThreshold(t *testing.T) {
	k := testKey(t)
	cands := []types.EnrolledTemplate{enrolled(t, k, 1, types.IndexRight, types.EncodingNumericVector, codec.FromVector([]float64{1, 1}))}
	m, _ := match.NewSimilarity(0.85, k)
	res, err := m.Match(types.PresentedTemplate{Finger: types.IndexRight, Vector: []float64{1, 0}}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched || res.Person != nil {
		t.Errorf("expected no match, got %+v", res)
	}
	if math.Abs(res.Score-1/math.Sqrt2) > 1e-12 {
		t.Errorf("expected best observed score %v, got %v", 1/math.Sqrt2, res.Score)
	}
}

func TestSimilarity_FingerMismatchIsNotError(t *testing.T) {
	k := testKey(t)
	payload := codec.FromVector([]float64{0.3, 0.4})
	cands := []types.EnrolledTemplate{enrolled(t, k, 1, types.ThumbRight, types.EncodingNumericVector, payload)}
	m, _ := match.NewSimilarity(0.85, k)
	res, err := m.Match(types.PresentedTemplate{Finger: types.ThumbLeft, Payload: payload}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched {
		t.Error("expected no match across fingers")
	}
}

func TestSimilarity_DimensionMismatchPropagates(t *testing.T) {
	k := testKey(t)
	cands := []types.EnrolledTemplate{enrolled(t, k, 1, types.IndexRight, types.EncodingNumericVector, codec.FromVector([]float64{1, 2, 3}))}
	m, _ := match.NewSimilarity(0.85, k)
	_, err := m.Match(types.PresentedTemplate{Finger: types.IndexRight, Vector: []float64{1, 2}}, cands)
	if !errors.Is(err, match.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSimilarity_MalformedProbe(t *testing.T) {
	m, _ := match.NewSimilarity(0.85, nil)
	_, err := m.Match(types.PresentedTemplate{Finger: types.IndexRight, Payload: []byte("Test")}, nil)
	if !errors.Is(err, codec.ErrMalformedVector) {
		t.Errorf("expected ErrMalformedVector, got %v", err)
	}
}

func TestSimilarity_SkipsRawByteCandidates(t *testing.T) {
	k := testKey(t)
	cands := []types.EnrolledTemplate{enrolled(t, k, 1, types.IndexRight, types.EncodingRawBytes, []byte("1,0"))}
	m, _ := match.NewSimilarity(0.85, k)
	res, err := m.Match(types.PresentedTemplate{Finger: types.IndexRight, Vector: []float64{1, 0}}, cands)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched {
		t.Error("raw_bytes candidates must not be compared by the similarity strategy")
	}
}

func TestNew(t *testing.T) {
	if m, err := match.New("", 0, nil); err != nil || m.Strategy() != types.StrategyExact {
		t.Errorf("default strategy: got %v, %v", m, err)
	}
	m, err := match.New(types.StrategySimilarity, 0, nil)
	if err != nil {
		t.Fatalf("New similarity: %v", err)
	}
	if s := m.(*match.Similarity); s.Threshold != match.DefaultThreshold {
		t.Errorf("threshold = %v, want %v", s.Threshold, match.DefaultThreshold)
	}
	if _, err := match.New(types.StrategySimilarity, 1.5, nil); err == nil {
		t.Error("expected error for threshold above 1")
	}
	if _, err := match.New("fuzzy", 0, nil); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
