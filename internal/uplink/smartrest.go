package uplink

import (
	"strconv"
	"strings"
	"time"
)

// SmartREST static template topics.
const (
	// topicUpstream carries measurements, alarms, events and operation
	// status updates for the device owning the connection.
	topicUpstream = "s/us"

	// topicDownstream delivers operations from the platform.
	topicDownstream = "s/ds"

	// topicInventoryPrefix is the per-device upstream topic used for
	// registration, suffixed with the device ID.
	topicInventoryPrefix = "s/ud/"
)

// SmartREST static template IDs used by the simulator.
const (
	templateRegister    = "100"
	templateMeasurement = "200"
	templateAlarm       = "301"
	templateEvent       = "400"
	templateExecuting   = "501"
	templateSuccessful  = "503"
	templateRestart     = "510"
)

const restartFragment = "c8y_Restart"

// Alarm severities accepted by the platform.
const (
	SeverityCritical = "CRITICAL"
	SeverityMajor    = "MAJOR"
	SeverityMinor    = "MINOR"
	SeverityWarning  = "WARNING"
)

// smartRESTTimeLayout is ISO-8601 with a fixed six-digit fraction,
// matching the precision measurements are stored with.
const smartRESTTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Measurement is one telemetry sample in the form the uplink publishes:
// four SmartREST measurement messages sharing a single timestamp.
type Measurement struct {
	Timestamp time.Time
	Voltage   float64 // volts
	Current   float64 // amperes
	Power     float64 // watts
	Kwh       float64 // cumulative kilowatt-hours
}

// registrationTopic returns the per-device inventory topic.
func registrationTopic(deviceID string) string {
	return topicInventoryPrefix + deviceID
}

// registrationMessage builds the template 100 payload that creates the
// device in the platform inventory.
func registrationMessage(name, deviceType string) string {
	return templateRegister + "," + escapeField(name) + "," + escapeField(deviceType)
}

// measurementMessages builds the four template 200 payloads for one
// sample: voltage, current, power and cumulative energy.
func measurementMessages(m Measurement) []string {
	ts := formatTimestamp(m.Timestamp)
	return []string{
		measurementMessage("c8y_Voltage", m.Voltage, "V", ts),
		measurementMessage("c8y_Current", m.Current, "A", ts),
		measurementMessage("c8y_Power", m.Power, "W", ts),
		measurementMessage("c8y_EnergyConsumption", m.Kwh, "kWh", ts),
	}
}

func measurementMessage(fragment string, value float64, unit, timestamp string) string {
	return templateMeasurement + "," + fragment + "," + formatValue(value) + "," + unit + "," + timestamp
}

// alarmMessage builds a template 301 payload. An empty severity
// defaults to MINOR.
func alarmMessage(alarmType, text, severity string) string {
	if severity == "" {
		severity = SeverityMinor
	}
	return templateAlarm + "," + escapeField(alarmType) + "," + escapeField(text) + "," + severity
}

// heartbeatMessage builds a template 400 heartbeat event payload.
func heartbeatMessage(text string) string {
	return templateEvent + ",c8y_Heartbeat," + escapeField(text)
}

func restartExecutingMessage() string {
	return templateExecuting + "," + restartFragment
}

func restartSuccessfulMessage() string {
	return templateSuccessful + "," + restartFragment
}

// isRestartCommand reports whether a downstream payload is a template
// 510 restart operation for this device. The payload carries the
// template ID in its first comma-separated field.
func isRestartCommand(payload string) bool {
	template, _, _ := strings.Cut(strings.TrimSpace(payload), ",")
	return template == templateRestart
}

// formatValue renders a float the way the platform expects: shortest
// decimal form, never scientific notation.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatTimestamp renders a timestamp in UTC ISO-8601.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(smartRESTTimeLayout)
}

// escapeField quotes a field containing separators so it survives the
// comma-separated SmartREST encoding. Embedded quotes are doubled.
func escapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
