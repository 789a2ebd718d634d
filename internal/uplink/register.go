package uplink

import (
	"fmt"
	"time"
)

// Register creates the device in the platform inventory.
//
// Registration happens at most once per device: a durable record is
// written after the first successful publish, and later calls find the
// record and skip the publish. force bypasses the record and
// re-registers unconditionally. Either way the session subscribes to
// downstream operations so restart commands reach the device.
//
// Parameters:
//   - deviceType: Platform device type, the simulator type ID ("pv")
//   - name: Inventory name, usually Settings.DeviceName(deviceID)
//   - force: Re-register even when a registration record exists
//
// Returns:
//   - error: ErrNotConnected on a disconnected session, publish or
//     subscribe errors otherwise. A failure leaves the connection up.
func (s *Session) Register(deviceType, name string, force bool) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	if !force && s.store != nil {
		recorded, ok, err := s.store.Registered(s.deviceID)
		switch {
		case err != nil:
			// Unreadable record: register again rather than risk a
			// device that never appears in the inventory.
			s.logger.Warn("reading registration record",
				"device_id", s.deviceID,
				"error", err,
			)
		case ok:
			s.logger.Info("device already registered",
				"device_id", s.deviceID,
				"name", recorded,
			)
			s.markRegistered()
			return s.subscribeCommands()
		}
	}

	payload := registrationMessage(name, deviceType)
	if err := s.publish(registrationTopic(s.deviceID), payload, qosAtLeastOnce, true); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}

	if s.store != nil {
		if err := s.store.MarkRegistered(s.deviceID, name, time.Now()); err != nil {
			// The device now exists on the platform even though the
			// record write failed; the next run may register it again.
			s.logger.Warn("recording registration",
				"device_id", s.deviceID,
				"error", err,
			)
		}
	}

	s.markRegistered()
	s.logger.Info("device registered",
		"device_id", s.deviceID,
		"name", name,
		"type", deviceType,
	)

	return s.subscribeCommands()
}

func (s *Session) markRegistered() {
	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
}
