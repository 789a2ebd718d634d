package uplink

import "time"

// Reconnection constants.
const (
	// reconnectBaseDelay is the wait before the first retry.
	reconnectBaseDelay = 5 * time.Second

	// reconnectMaxDelay caps the exponential backoff.
	reconnectMaxDelay = 300 * time.Second

	// maxReconnectAttempts bounds the background loop, roughly four
	// hours of retries at the capped delay.
	maxReconnectAttempts = 50
)

// backoffDelay returns the wait before the given 1-based attempt: the
// base delay doubled per attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base << (attempt - 1)
	// The shift overflows for large attempt counts; treat that as
	// having reached the cap.
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

// reconnectLoop retries the connection with exponential backoff until
// it succeeds, the session is shut down, or the attempt budget runs
// out. Exhaustion is terminal: reconnection is disabled and only an
// explicit Connect call revives the uplink.
func (s *Session) reconnectLoop() {
	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		// A drop landing between a successful attempt and this reset
		// would find no loop running; relaunch for that case.
		relaunch := s.autoReconnect && s.state == StateDisconnected && s.client != nil
		if relaunch {
			s.reconnecting = true
		}
		s.mu.Unlock()

		if relaunch {
			go s.reconnectLoop()
		}
	}()

	for attempt := 1; attempt <= s.maxReconnects; attempt++ {
		s.mu.Lock()
		stop := s.stop
		enabled := s.autoReconnect
		s.mu.Unlock()

		if !enabled || stop == nil {
			return
		}

		select {
		case <-stop:
			return
		case <-time.After(backoffDelay(attempt, s.reconnectBase, s.reconnectMax)):
		}

		s.logger.Info("reconnecting to uplink",
			"device_id", s.deviceID,
			"attempt", attempt,
			"max_attempts", s.maxReconnects,
		)

		err := s.connectBroker()
		if err == nil {
			s.logger.Info("uplink reconnected",
				"device_id", s.deviceID,
				"attempts", attempt,
			)
			return
		}

		s.logger.Warn("reconnect attempt failed",
			"device_id", s.deviceID,
			"attempt", attempt,
			"error", err,
		)
	}

	s.mu.Lock()
	s.autoReconnect = false
	s.mu.Unlock()

	s.logger.Error("giving up on uplink reconnection",
		"device_id", s.deviceID,
		"attempts", s.maxReconnects,
	)
}
