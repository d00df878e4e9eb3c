package service

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// HeartbeatService records sensor liveness. The sensor sends a TEST frame
// and each one becomes a heartbeat row.
type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	session        Session
	port           string
}

func NewHeartbeatService(hs store.HeartbeatStore, sess Session, port string) *HeartbeatService {
	return &HeartbeatService{heartbeatStore: hs, session: sess, port: port}
}

func (s *HeartbeatService) Record(ctx context.Context, receivedAt time.Time) error {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return s.heartbeatStore.RecordHeartbeat(ctx, types.SensorHeartbeat{
		DeviceID:   s.session.Device,
		UnitID:     s.session.Unit.ID,
		Port:       s.port,
		ReceivedAt: receivedAt.UTC(),
	})
}
