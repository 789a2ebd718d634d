package uplink

import (
	"testing"
	"time"
)

func TestRegistrationMessage(t *testing.T) {
	got := registrationMessage("iot_sim_pv001", "pv")
	want := "100,iot_sim_pv001,pv"
	if got != want {
		t.Errorf("registrationMessage() = %q, want %q", got, want)
	}
}

func TestRegistrationTopic(t *testing.T) {
	if got := registrationTopic("pv001"); got != "s/ud/pv001" {
		t.Errorf("registrationTopic() = %q, want %q", got, "s/ud/pv001")
	}
}

func TestMeasurementMessages(t *testing.T) {
	m := Measurement{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
		Voltage:   231.5,
		Current:   9.8,
		Power:     2268.7,
		Kwh:       12.345678,
	}

	want := []string{
		"200,c8y_Voltage,231.5,V,2026-03-14T09:26:53.589793Z",
		"200,c8y_Current,9.8,A,2026-03-14T09:26:53.589793Z",
		"200,c8y_Power,2268.7,W,2026-03-14T09:26:53.589793Z",
		"200,c8y_EnergyConsumption,12.345678,kWh,2026-03-14T09:26:53.589793Z",
	}

	got := measurementMessages(m)
	if len(got) != len(want) {
		t.Fatalf("measurementMessages() returned %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("measurementMessages()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAlarmMessage(t *testing.T) {
	got := alarmMessage("c8y_PersistFailure", "database unavailable", SeverityMajor)
	want := "301,c8y_PersistFailure,database unavailable,MAJOR"
	if got != want {
		t.Errorf("alarmMessage() = %q, want %q", got, want)
	}
}

func TestAlarmMessage_DefaultSeverity(t *testing.T) {
	got := alarmMessage("c8y_PersistFailure", "database unavailable", "")
	want := "301,c8y_PersistFailure,database unavailable,MINOR"
	if got != want {
		t.Errorf("alarmMessage() = %q, want %q", got, want)
	}
}

func TestHeartbeatMessage(t *testing.T) {
	got := heartbeatMessage("Device heartbeat")
	want := "400,c8y_Heartbeat,Device heartbeat"
	if got != want {
		t.Errorf("heartbeatMessage() = %q, want %q", got, want)
	}
}

func TestRestartMessages(t *testing.T) {
	if got := restartExecutingMessage(); got != "501,c8y_Restart" {
		t.Errorf("restartExecutingMessage() = %q, want %q", got, "501,c8y_Restart")
	}
	if got := restartSuccessfulMessage(); got != "503,c8y_Restart" {
		t.Errorf("restartSuccessfulMessage() = %q, want %q", got, "503,c8y_Restart")
	}
}

func TestIsRestartCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"restart with serial", "510,iot_sim_pv001", true},
		{"bare restart", "510", true},
		{"leading whitespace", "  510,iot_sim_pv001", true},
		{"other template", "511,iot_sim_pv001,ls", false},
		{"longer template id", "5100,x", false},
		{"empty payload", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRestartCommand(tt.payload); got != tt.want {
				t.Errorf("isRestartCommand(%q) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{231.5, "231.5"},
		{9.8, "9.8"},
		{0, "0"},
		{12.345678, "12.345678"},
		{0.000001, "0.000001"},
		{1000000, "1000000"},
	}

	for _, tt := range tests {
		if got := formatValue(tt.value); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFormatTimestamp_ConvertsToUTC(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	ts := time.Date(2026, 1, 2, 15, 4, 5, 123456000, cet)

	got := formatTimestamp(ts)
	want := "2026-01-02T14:04:05.123456Z"
	if got != want {
		t.Errorf("formatTimestamp() = %q, want %q", got, want)
	}
}

func TestEscapeField(t *testing.T) {
	tests := []struct {
		name  string
		field string
		want  string
	}{
		{"plain", "iot_sim_pv001", "iot_sim_pv001"},
		{"comma", "disk full, retrying", `"disk full, retrying"`},
		{"quote", `the "main" grid`, `"the ""main"" grid"`},
		{"newline", "line1\nline2", "\"line1\nline2\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeField(tt.field); got != tt.want {
				t.Errorf("escapeField(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}
