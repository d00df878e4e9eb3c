// Package codec converts sensor transport encodings into template bytes and
// numeric feature vectors. All functions are pure.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldSeparator separates components of a serialized feature vector.
const FieldSeparator = ","

var (
	ErrInvalidEncoding = errors.New("invalid base64 template format")
	ErrMalformedVector = errors.New("malformed template vector")
)

// Decode decodes a padded standard-base64 template. Surrounding whitespace
// is ignored; an empty result is rejected.
func Decode(transport string) ([]byte, error) {
	s := strings.TrimSpace(transport)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEncoding)
	}
	b, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEncoding)
	}
	return b, nil
}

// Encode is the inverse of Decode.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// ToVector parses "f1,f2,...,fn" into floats.
func ToVector(b []byte) ([]float64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return nil, fmt.Errorf("%w: empty vector", ErrMalformedVector)
	}
	fields := strings.Split(s, FieldSeparator)
	out := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q is not a number", ErrMalformedVector, i, f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: field %d is not finite", ErrMalformedVector, i)
		}
		out = append(out, v)
	}
	return out, nil
}

// FromVector serializes v in the form ToVector reads.
func FromVector(v []float64) []byte {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return []byte(strings.Join(parts, FieldSeparator))
}
