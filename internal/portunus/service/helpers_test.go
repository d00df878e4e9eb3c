package service_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/codec"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/match"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/templatecrypt"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

const testDevice = "R307"

// fixture is a query service over an in-memory store with one unit.
type fixture struct {
	svc   *service.QueryService
	store *memory.Store
	unit  types.Unit
	gate  *recordingGate
	hook  *test.Hook
	log   *logrus.Logger
	key   *templatecrypt.Key
}

type fixtureOptions struct {
	strategy types.Strategy
	// audit replaces the access log store when set.
	audit interface {
		AppendAccessLog(context.Context, types.AccessLogEntry) (int64, error)
	}
	matcher match.Matcher
}

func testKey(t *testing.T, b byte) *templatecrypt.Key {
	t.Helper()
	k, err := templatecrypt.NewKey(bytes.Repeat([]byte{b}, templatecrypt.KeySize))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	t.Cleanup(k.Close)
	return k
}

func newFixture(t *testing.T, opt fixtureOptions) *fixture {
	t.Helper()

	ms := memory.New()
	unit, err := ms.UpsertUnit(context.Background(), "LAB-1", "Lab")
	if err != nil {
		t.Fatalf("UpsertUnit: %v", err)
	}
	key := testKey(t, 7)

	m := opt.matcher
	if m == nil {
		if m, err = match.New(opt.strategy, 0, key); err != nil {
			t.Fatalf("match.New: %v", err)
		}
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	g := &recordingGate{opened: make(chan struct{}, 8)}

	var auditStore interface {
		AppendAccessLog(context.Context, types.AccessLogEntry) (int64, error)
	} = ms
	if opt.audit != nil {
		auditStore = opt.audit
	}

	sess := service.Session{Unit: unit, Device: testDevice}
	svc := service.NewQueryService(sess, ms, auditStore, m, g, logger)
	return &fixture{svc: svc, store: ms, unit: unit, gate: g, hook: hook, log: logger, key: key}
}

// enroll stores payload for a new person, encrypted with the fixture key.
func (f *fixture) enroll(t *testing.T, name string, finger types.FingerType, payload []byte, enc types.Encoding) types.Person {
	t.Helper()
	es := service.NewEnrollmentService(f.store, f.key, f.log)
	res, err := es.Enroll(context.Background(), service.EnrollRequest{
		Unit:     f.unit,
		Person:   types.Person{FullName: name, NationalID: "NID-" + name, Type: types.PersonStudent},
		Finger:   finger.String(),
		Template: codec.Encode(payload),
		Encoding: enc,
	})
	if err != nil {
		t.Fatalf("Enroll(%s): %v", name, err)
	}
	return res.Person
}

type recordingGate struct {
	opened chan struct{}
}

func (g *recordingGate) Open() { g.opened <- struct{}{} }

func (g *recordingGate) waitOpened(t *testing.T) {
	t.Helper()
	select {
	case <-g.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("gate was not opened")
	}
}

func (g *recordingGate) assertNotOpened(t *testing.T) {
	t.Helper()
	select {
	case <-g.opened:
		t.Fatal("gate opened unexpectedly")
	case <-time.After(50 * time.Millisecond):
	}
}

type failingAudit struct{}

func (failingAudit) AppendAccessLog(context.Context, types.AccessLogEntry) (int64, error) {
	return 0, errors.New("disk full")
}

// hasLevel reports whether any captured entry was logged at lvl.
func hasLevel(hook *test.Hook, lvl logrus.Level) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == lvl {
			return true
		}
	}
	return false
}

func newNullLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}
