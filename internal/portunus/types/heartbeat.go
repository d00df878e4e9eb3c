package types

import "time"

// SensorHeartbeat is recorded each time a sensor sends a TEST frame.
type SensorHeartbeat struct {
	DeviceID   string
	UnitID     int64
	Port       string
	ReceivedAt time.Time
}
