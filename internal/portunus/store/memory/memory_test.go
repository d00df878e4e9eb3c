package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

func TestUnits_ResolveAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	u, err := s.ResolveUnit(ctx, "LAB-1")
	if err != nil || u != nil {
		t.Fatalf("ResolveUnit on empty store = %+v, %v; want nil, nil", u, err)
	}

	created, err := s.UpsertUnit(ctx, "LAB-1", "Lab")
	if err != nil {
		t.Fatalf("UpsertUnit: %v", err)
	}
	renamed, err := s.UpsertUnit(ctx, " LAB-1 ", "Lab One")
	if err != nil {
		t.Fatalf("UpsertUnit again: %v", err)
	}
	if renamed.ID != created.ID || renamed.Name != "Lab One" {
		t.Fatalf("expected same id with new name, got %+v then %+v", created, renamed)
	}

	if _, err := s.UpsertUnit(ctx, "  ", "x"); err == nil {
		t.Fatal("expected error for blank unit code")
	}
}

func TestEnrollTemplate_UnknownPerson(t *testing.T) {
	s := memory.New()
	_, err := s.EnrollTemplate(context.Background(), types.EnrolledTemplate{OwnerID: 42, Finger: types.ThumbLeft})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindCandidateTemplates_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	lab, _ := s.UpsertUnit(ctx, "LAB-1", "Lab")
	other, _ := s.UpsertUnit(ctx, "LAB-2", "Other")
	ana, _ := s.CreatePerson(ctx, types.Person{FullName: "Ana", Type: types.PersonStaff})
	bo, _ := s.CreatePerson(ctx, types.Person{FullName: "Bo", Type: types.PersonStudent})

	t0 := time.Date(2025, 9, 11, 8, 0, 0, 0, time.UTC)
	enroll := func(owner types.Person, unit types.Unit, f types.FingerType, at time.Time, payload string) int64 {
		t.Helper()
		id, err := s.EnrollTemplate(ctx, types.EnrolledTemplate{
			OwnerID: owner.ID, UnitID: unit.ID, Finger: f,
			Payload: []byte(payload), Encoding: types.EncodingRawBytes, EnrolledAt: at,
		})
		if err != nil {
			t.Fatalf("EnrollTemplate: %v", err)
		}
		return id
	}

	enroll(ana, lab, types.IndexRight, t0, "ana-old")
	anaNew := enroll(ana, lab, types.IndexRight, t0.Add(time.Hour), "ana-new")
	boID := enroll(bo, lab, types.IndexRight, t0.Add(2*time.Hour), "bo")
	enroll(bo, lab, types.ThumbLeft, t0, "bo-thumb")
	enroll(ana, other, types.IndexRight, t0.Add(3*time.Hour), "ana-elsewhere")

	got, err := s.FindCandidateTemplates(ctx, lab.ID, types.IndexRight)
	if err != nil {
		t.Fatalf("FindCandidateTemplates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active candidates, got %d: %+v", len(got), got)
	}
	if got[0].ID != boID || got[1].ID != anaNew {
		t.Fatalf("expected newest first [%d %d], got [%d %d]", boID, anaNew, got[0].ID, got[1].ID)
	}
	if got[1].Owner.FullName != "Ana" || string(got[1].Payload) != "ana-new" {
		t.Errorf("unexpected candidate: %+v", got[1])
	}

	// Callers may scribble on the returned payload.
	got[0].Payload[0] = 'X'
	again, _ := s.FindCandidateTemplates(ctx, lab.ID, types.IndexRight)
	if string(again[0].Payload) != "bo" {
		t.Errorf("store payload was mutated through a returned slice: %q", again[0].Payload)
	}
}

func TestAccessLog_AppendAssignsTimestamp(t *testing.T) {
	s := memory.New()
	id, err := s.AppendAccessLog(context.Background(), types.AccessLogEntry{QueryID: "q1", Decision: types.DecisionDenied})
	if err != nil {
		t.Fatalf("AppendAccessLog: %v", err)
	}
	if id != 1 {
		t.Errorf("expected id 1, got %d", id)
	}
	logs := s.AccessLogs()
	if len(logs) != 1 || logs[0].Timestamp.IsZero() {
		t.Fatalf("expected one timestamped entry, got %+v", logs)
	}
}

func TestHeartbeats_Prune(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	_ = s.RecordHeartbeat(ctx, types.SensorHeartbeat{DeviceID: "R307", ReceivedAt: now.Add(-48 * time.Hour)})
	_ = s.RecordHeartbeat(ctx, types.SensorHeartbeat{DeviceID: "R307", ReceivedAt: now})

	n, err := s.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if hb := s.Heartbeats(); len(hb) != 1 || !hb[0].ReceivedAt.Equal(now) {
		t.Errorf("unexpected remaining heartbeats: %+v", hb)
	}
}
