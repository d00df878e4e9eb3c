package types

import (
	"fmt"
	"strings"
	"time"
)

type PersonType string

const (
	PersonStudent PersonType = "student"
	PersonTeacher PersonType = "teacher"
	PersonStaff   PersonType = "staff"
	PersonOther   PersonType = "other"
)

// ParsePersonType accepts the four storage tokens; anything else is an error.
func ParsePersonType(s string) (PersonType, error) {
	switch p := PersonType(strings.ToLower(strings.TrimSpace(s))); p {
	case PersonStudent, PersonTeacher, PersonStaff, PersonOther:
		return p, nil
	}
	return "", fmt.Errorf("invalid person type %q", s)
}

// Person is the identity an enrolled template belongs to.
type Person struct {
	ID         int64      `json:"id"`
	FullName   string     `json:"full_name"`
	NationalID string     `json:"national_id"`
	Type       PersonType `json:"person_type"`
}

// Encoding describes how a template payload is laid out once decrypted.
type Encoding string

const (
	EncodingRawBytes      Encoding = "raw_bytes"
	EncodingNumericVector Encoding = "numeric_vector"
)

func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case EncodingRawBytes, EncodingNumericVector:
		return e, nil
	}
	return "", fmt.Errorf("invalid template encoding %q", s)
}

// EnrolledTemplate is a stored template together with its owner, as
// returned by the template store for one decision cycle.
type EnrolledTemplate struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Owner      Person     `json:"owner"`
	UnitID     int64      `json:"unit_id"`
	Finger     FingerType `json:"finger"`
	Payload    []byte     `json:"payload"`
	Encoding   Encoding   `json:"encoding"`
	Encrypted  bool       `json:"encrypted"`
	EnrolledAt time.Time  `json:"enrolled_at"`
}

// PresentedTemplate is the decoded reading for a single query.
type PresentedTemplate struct {
	Finger  FingerType
	Payload []byte
	// Vector is set when the payload was parsed as a numeric feature vector.
	Vector []float64
}

// Unit is the site a sensor is deployed at.
type Unit struct {
	ID       int64  `json:"id"`
	UnitCode string `json:"unit_code"`
	Name     string `json:"name"`
}
