package uplink

import (
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// defaultRestartDelay is the simulated duration of a device restart
// between the EXECUTING and SUCCESSFUL status updates.
const defaultRestartDelay = 5 * time.Second

// subscribeCommands subscribes to the downstream operation topic.
func (s *Session) subscribeCommands() error {
	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handleCommand(string(msg.Payload()))
	}

	if err := s.subscribe(topicDownstream, handler); err != nil {
		return err
	}

	s.logger.Debug("subscribed to operations",
		"device_id", s.deviceID,
		"topic", topicDownstream,
	)
	return nil
}

// handleCommand dispatches one downstream operation payload. Only the
// restart template is supported; everything else is ignored.
func (s *Session) handleCommand(payload string) {
	if !isRestartCommand(payload) {
		s.logger.Debug("ignoring operation",
			"device_id", s.deviceID,
			"payload", payload,
		)
		return
	}

	s.logger.Info("restart operation received", "device_id", s.deviceID)
	go s.runRestart()
}

// runRestart walks the scripted restart lifecycle: report EXECUTING,
// wait out the simulated restart, report SUCCESSFUL. The worker keeps
// running throughout; only the operation status is simulated.
func (s *Session) runRestart() {
	if err := s.publish(topicUpstream, restartExecutingMessage(), qosAtLeastOnce, true); err != nil {
		s.logger.Warn("acknowledging restart",
			"device_id", s.deviceID,
			"error", err,
		)
		return
	}

	time.Sleep(s.restartDelay)

	if err := s.publish(topicUpstream, restartSuccessfulMessage(), qosAtLeastOnce, true); err != nil {
		s.logger.Warn("completing restart",
			"device_id", s.deviceID,
			"error", err,
		)
		return
	}

	s.logger.Info("restart operation completed", "device_id", s.deviceID)
}
