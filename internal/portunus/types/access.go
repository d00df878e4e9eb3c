package types

import "time"

// Decision is the terminal state of one decision cycle.
type Decision string

const (
	DecisionGranted Decision = "GRANTED"
	DecisionDenied  Decision = "DENIED"
	DecisionError   Decision = "ERROR"
)

// Strategy names the template matching algorithm a deployment uses.
type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategySimilarity Strategy = "similarity"
)

// MatchResult is the matching engine's verdict over a candidate set.
// Person is non-nil iff Matched.
type MatchResult struct {
	Matched  bool
	Person   *Person
	Finger   FingerType
	Score    float64 // best score observed; 0 when nothing was compared
	Strategy Strategy
}

type QueryRequest struct {
	Template   string `json:"template"`
	Finger     string `json:"finger"`
	ReceivedAt string `json:"received_at,omitempty"` // optional device timestamp
}

type PersonView struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	NationalID string     `json:"national_id"`
	Type       PersonType `json:"type"`
	FingerUsed string     `json:"finger_used"`
}

type QueryResult struct {
	QueryID       string      `json:"query_id"`
	AccessGranted bool        `json:"access_granted"`
	Result        Decision    `json:"result"`
	Error         string      `json:"error,omitempty"`
	Timestamp     string      `json:"timestamp"`
	UnitCode      string      `json:"unit_code"`
	Device        string      `json:"device"`
	Person        *PersonView `json:"person"`
	Score         *float64    `json:"score,omitempty"`
	Strategy      Strategy    `json:"strategy"`
	AuditLogged   bool        `json:"audit_logged"`
}

// AccessLogEntry is the audit record written once per decision cycle.
type AccessLogEntry struct {
	QueryID        string
	PersonID       *int64
	UnitID         int64
	DeviceID       string
	Decision       Decision
	VerifiedByCore bool
	Error          string
	RequestedAt    *time.Time // optional device-reported timestamp
	Timestamp      time.Time
}
