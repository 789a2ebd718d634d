// Package uplink connects a simulated device to a Cumulocity IoT tenant
// over MQTT using the SmartREST static template set.
//
// Each worker process owns one Session for its device. The session manages:
//   - Connection to the platform broker with bounded connect timeout
//   - Device registration, recorded so it happens at most once per device
//   - Measurement, alarm and heartbeat publishing
//   - A restart operation handler for downstream commands
//   - Reconnection with exponential backoff and a terminal give-up
//
// # Protocol
//
// Messages use SmartREST static templates, comma-separated plain text:
//
//	100,<name>,<type>          registration      (s/ud/<device_id>)
//	200,<fragment>,<value>,..  measurement       (s/us)
//	301,<type>,<text>,<sev>    alarm             (s/us)
//	400,c8y_Heartbeat,<text>   heartbeat event   (s/us)
//	501/503,c8y_Restart        operation status  (s/us)
//
// Downstream commands arrive on s/ds; template 510 requests a restart.
//
// # Usage
//
//	settings, _ := uplink.LoadSettings(path)
//	session := uplink.NewSession("pv001", settings, store, logger)
//	if err := session.Connect(); err != nil {
//	    log.Warn("uplink unavailable", "error", err)
//	}
//	session.Register("pv", settings.DeviceName("pv001"), false)
//	session.SendMeasurement(m)
//	defer session.Disconnect()
//
// A session that loses its connection reconnects in the background.
// After repeated failures it gives up and stays offline until Connect
// is called again; publishing to a disconnected session fails without
// blocking the caller's sampling loop.
package uplink
