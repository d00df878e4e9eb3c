package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/codec"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

var ErrMissingName = errors.New("person full name is required")

// Encrypter seals template payloads before they are stored.
// *templatecrypt.Key satisfies it.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

type EnrollRequest struct {
	Unit types.Unit
	// Person is created when Person.ID is zero.
	Person   types.Person
	Finger   string
	Template string // base64, as the sensor sends it
	Encoding types.Encoding
}

type EnrollResult struct {
	Person     types.Person
	TemplateID int64
	Finger     types.FingerType
	Encrypted  bool
}

type EnrollmentService struct {
	store store.EnrollmentStore
	enc   Encrypter
	log   logrus.FieldLogger
}

// NewEnrollmentService returns a service that encrypts with enc. A nil enc
// stores payloads in the clear.
func NewEnrollmentService(st store.EnrollmentStore, enc Encrypter, logger logrus.FieldLogger) *EnrollmentService {
	return &EnrollmentService{store: st, enc: enc, log: logger}
}

// Enroll stores req's template as the active one for the person and
// finger. Validation mirrors the query path so anything enrolled can be
// presented later.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	if strings.TrimSpace(req.Template) == "" {
		return EnrollResult{}, ErrMissingTemplate
	}
	finger, err := types.ParseFinger(req.Finger)
	if err != nil {
		return EnrollResult{}, err
	}
	payload, err := codec.Decode(req.Template)
	if err != nil {
		return EnrollResult{}, err
	}

	if req.Encoding == "" {
		req.Encoding = types.EncodingRawBytes
	}
	switch req.Encoding {
	case types.EncodingRawBytes:
	case types.EncodingNumericVector:
		v, err := codec.ToVector(payload)
		if err != nil {
			return EnrollResult{}, err
		}
		payload = codec.FromVector(v)
	default:
		return EnrollResult{}, fmt.Errorf("unsupported template encoding %q", req.Encoding)
	}

	encrypted := false
	if s.enc != nil {
		if payload, err = s.enc.Encrypt(payload); err != nil {
			return EnrollResult{}, err
		}
		encrypted = true
	}

	person := req.Person
	if person.ID == 0 {
		person.FullName = strings.TrimSpace(person.FullName)
		if person.FullName == "" {
			return EnrollResult{}, ErrMissingName
		}
		if person.Type == "" {
			person.Type = types.PersonOther
		}
		if person, err = s.store.CreatePerson(ctx, person); err != nil {
			return EnrollResult{}, fmt.Errorf("create person: %w", err)
		}
	}

	id, err := s.store.EnrollTemplate(ctx, types.EnrolledTemplate{
		OwnerID:   person.ID,
		UnitID:    req.Unit.ID,
		Finger:    finger,
		Payload:   payload,
		Encoding:  req.Encoding,
		Encrypted: encrypted,
	})
	if err != nil {
		return EnrollResult{}, fmt.Errorf("enroll template: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"person_id":   person.ID,
		"template_id": id,
		"unit_code":   req.Unit.UnitCode,
		"finger":      finger.String(),
		"encoding":    req.Encoding,
		"encrypted":   encrypted,
	}).Info("template enrolled")

	return EnrollResult{Person: person, TemplateID: id, Finger: finger, Encrypted: encrypted}, nil
}
