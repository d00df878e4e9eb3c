package service

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// outcome is everything one decision cycle produced. The sensor reply,
// the result object and the audit row are all derived from it.
type outcome struct {
	queryID  string
	at       time.Time
	session  Session
	strategy types.Strategy
	decision types.Decision
	match    types.MatchResult
	err      error
}

func (o outcome) granted() bool { return o.decision == types.DecisionGranted }

func (o outcome) result(auditLogged bool) types.QueryResult {
	r := types.QueryResult{
		QueryID:       o.queryID,
		AccessGranted: o.granted(),
		Result:        o.decision,
		Timestamp:     o.at.Format(time.RFC3339Nano),
		UnitCode:      o.session.Unit.UnitCode,
		Device:        o.session.Device,
		Strategy:      o.strategy,
		AuditLogged:   auditLogged,
	}

	if o.decision == types.DecisionError {
		r.Error = o.err.Error()
		return r
	}

	score := o.match.Score
	r.Score = &score

	if o.granted() && o.match.Person != nil {
		p := o.match.Person
		r.Person = &types.PersonView{
			ID:         p.ID,
			Name:       p.FullName,
			NationalID: p.NationalID,
			Type:       p.Type,
			FingerUsed: o.match.Finger.String(),
		}
	}
	return r
}

func (o outcome) accessLogEntry(requestedAt *time.Time) types.AccessLogEntry {
	e := types.AccessLogEntry{
		QueryID:        o.queryID,
		UnitID:         o.session.Unit.ID,
		DeviceID:       o.session.Device,
		Decision:       o.decision,
		VerifiedByCore: true,
		RequestedAt:    requestedAt,
		Timestamp:      o.at,
	}
	if o.granted() && o.match.Person != nil {
		id := o.match.Person.ID
		e.PersonID = &id
	}
	if o.err != nil {
		e.Error = o.err.Error()
	}
	return e
}
