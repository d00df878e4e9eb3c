package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/codec"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/match"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// Session is the per-process context every query runs in. It is built
// once at start-up and never changes.
type Session struct {
	Unit   types.Unit
	Device string
}

// Gate is the door actuator. Open must return promptly; the service does
// not wait for the door.
type Gate interface {
	Open()
}

type nopGate struct{}

func (nopGate) Open() {}

type QueryService struct {
	session   Session
	templates store.TemplateStore
	audit     store.AccessLogStore
	matcher   match.Matcher
	gate      Gate
	log       logrus.FieldLogger

	now   func() time.Time
	newID func() string

	auditFailures atomic.Int64
}

func NewQueryService(
	sess Session,
	templates store.TemplateStore,
	audit store.AccessLogStore,
	m match.Matcher,
	g Gate,
	logger logrus.FieldLogger,
) *QueryService {
	if g == nil {
		g = nopGate{}
	}
	return &QueryService{
		session:   sess,
		templates: templates,
		audit:     audit,
		matcher:   m,
		gate:      g,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

func (s *QueryService) Session() Session { return s.session }

func (s *QueryService) Strategy() types.Strategy { return s.matcher.Strategy() }

// AuditFailures is the number of decisions whose audit entry could not be
// written since start.
func (s *QueryService) AuditFailures() int64 { return s.auditFailures.Load() }

// Process runs one decision cycle to completion. It never returns an
// error: every fault becomes an ERROR decision. The cycle ignores
// cancellation of ctx so a started query always gets its audit entry.
func (s *QueryService) Process(ctx context.Context, req types.QueryRequest) types.QueryResult {
	ctx = context.WithoutCancel(ctx)

	queryID := s.newID()
	at := s.now()
	log := s.log.WithFields(logrus.Fields{
		"query_id":  queryID,
		"unit_code": s.session.Unit.UnitCode,
		"finger":    strings.TrimSpace(req.Finger),
	})

	mr, err := s.decideSafely(ctx, req)

	decision := types.DecisionDenied
	switch {
	case err != nil:
		decision = types.DecisionError
	case mr.Matched:
		decision = types.DecisionGranted
	}

	o := outcome{
		queryID:  queryID,
		at:       at,
		session:  s.session,
		strategy: s.matcher.Strategy(),
		decision: decision,
		match:    mr,
		err:      err,
	}

	entry := o.accessLogEntry(parseOptionalTimestamp(req.ReceivedAt))
	auditLogged := true
	if _, aerr := s.audit.AppendAccessLog(ctx, entry); aerr != nil {
		auditLogged = false
		s.auditFailures.Add(1)
		log.WithError(aerr).WithField("decision", decision).Error("access log write failed")
	}

	switch decision {
	case types.DecisionGranted:
		log.WithFields(logrus.Fields{
			"decision":  decision,
			"person_id": mr.Person.ID,
			"score":     mr.Score,
		}).Info("access granted")
		go s.gate.Open()
	case types.DecisionDenied:
		log.WithFields(logrus.Fields{"decision": decision, "score": mr.Score}).Info("access denied")
	default:
		elog := log.WithError(err).WithFields(logrus.Fields{"decision": decision, "class": classify(err).String()})
		if classify(err) == classInput {
			elog.Warn("query rejected")
		} else {
			elog.Error("query failed")
		}
	}

	return o.result(auditLogged)
}

func (s *QueryService) decideSafely(ctx context.Context, req types.QueryRequest) (mr types.MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			mr = types.MatchResult{}
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()
	return s.decide(ctx, req)
}

func (s *QueryService) decide(ctx context.Context, req types.QueryRequest) (types.MatchResult, error) {
	presented, err := s.validate(req)
	if err != nil {
		return types.MatchResult{}, err
	}

	candidates, err := s.templates.FindCandidateTemplates(ctx, s.session.Unit.ID, presented.Finger)
	if err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
		return types.MatchResult{}, err
	}

	mr, err := s.matcher.Match(presented, candidates)
	if err == nil && mr.Matched && mr.Person == nil {
		return types.MatchResult{}, fmt.Errorf("%w: match without a person", ErrInternal)
	}
	return mr, err
}

// validate checks the template is present, the finger is known and the
// template decodes, in that order.
func (s *QueryService) validate(req types.QueryRequest) (types.PresentedTemplate, error) {
	if strings.TrimSpace(req.Template) == "" {
		return types.PresentedTemplate{}, ErrMissingTemplate
	}
	finger, err := types.ParseFinger(req.Finger)
	if err != nil {
		return types.PresentedTemplate{}, err
	}
	payload, err := codec.Decode(req.Template)
	if err != nil {
		return types.PresentedTemplate{}, err
	}

	p := types.PresentedTemplate{Finger: finger, Payload: payload}
	if s.matcher.Strategy() == types.StrategySimilarity {
		if p.Vector, err = codec.ToVector(payload); err != nil {
			return types.PresentedTemplate{}, err
		}
	}
	return p, nil
}

// parseOptionalTimestamp parses a device-reported timestamp. Returns nil
// if the string is empty or unparseable.
func parseOptionalTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}
