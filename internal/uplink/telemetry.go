package uplink

import (
	"fmt"
	"time"
)

const (
	// heartbeatInterval is the tick for the liveness loop. A heartbeat
	// is only published when nothing else has gone out for a full
	// interval, so steady measurement traffic suppresses it entirely.
	heartbeatInterval = 60 * time.Second

	// inlineRetryCooldown rate-limits the reconnect attempt embedded in
	// SendMeasurement so a down broker cannot stall every sample.
	inlineRetryCooldown = 60 * time.Second
)

const heartbeatText = "Device heartbeat"

// SendMeasurement publishes one sample as four fire-and-forget
// measurement messages: voltage, current, power and cumulative energy.
//
// On a disconnected session it makes at most one inline reconnect
// attempt before failing with ErrNotConnected. Failures are expected
// while the broker is unreachable; the caller's sampling loop logs
// them and keeps going.
func (s *Session) SendMeasurement(m Measurement) error {
	if !s.IsConnected() && !s.tryInlineReconnect() {
		return ErrNotConnected
	}

	for _, payload := range measurementMessages(m) {
		if err := s.publish(topicUpstream, payload, qosAtMostOnce, false); err != nil {
			return fmt.Errorf("sending measurement: %w", err)
		}
	}
	return nil
}

// SendAlarm publishes an alarm for this device. An empty severity
// defaults to MINOR.
func (s *Session) SendAlarm(alarmType, text, severity string) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	if err := s.publish(topicUpstream, alarmMessage(alarmType, text, severity), qosAtMostOnce, false); err != nil {
		return fmt.Errorf("sending alarm: %w", err)
	}
	return nil
}

// tryInlineReconnect makes one bounded reconnect attempt from the
// publish path. It defers to the background loop when one is running
// and does nothing for sessions that were explicitly disconnected or
// have given up.
func (s *Session) tryInlineReconnect() bool {
	s.mu.Lock()
	allowed := s.autoReconnect && !s.reconnecting &&
		time.Since(s.lastInlineAttempt) >= inlineRetryCooldown
	if allowed {
		s.lastInlineAttempt = time.Now()
	}
	s.mu.Unlock()

	if !allowed {
		return false
	}

	if err := s.Connect(); err != nil {
		s.logger.Warn("inline reconnect failed",
			"device_id", s.deviceID,
			"error", err,
		)
		return false
	}
	return true
}

// heartbeatLoop publishes a periodic liveness event while connected.
// It runs from the first successful connect until Disconnect.
func (s *Session) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.maybeHeartbeat(time.Now())
		}
	}
}

// maybeHeartbeat publishes a heartbeat if the session is connected and
// no outbound message went out within the last interval.
func (s *Session) maybeHeartbeat(now time.Time) {
	s.mu.Lock()
	due := s.state == StateConnected && now.Sub(s.lastMessageAt) >= heartbeatInterval
	s.mu.Unlock()

	if !due {
		return
	}

	if err := s.publish(topicUpstream, heartbeatMessage(heartbeatText), qosAtMostOnce, false); err != nil {
		s.logger.Warn("sending heartbeat",
			"device_id", s.deviceID,
			"error", err,
		)
		return
	}

	s.mu.Lock()
	s.lastHeartbeatAt = now
	s.mu.Unlock()

	s.logger.Debug("heartbeat sent", "device_id", s.deviceID)
}
