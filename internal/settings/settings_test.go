package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_settings.json")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.MeasurementInterval != DefaultMeasurementInterval {
		t.Errorf("MeasurementInterval = %d, want %d", s.MeasurementInterval, DefaultMeasurementInterval)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_settings.json")
	if err := os.WriteFile(path, []byte("{broken"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestLoad_ClampsInterval(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"in range", `{"measurement_interval": 30}`, 30},
		{"missing field keeps default", `{}`, DefaultMeasurementInterval},
		{"zero clamped up", `{"measurement_interval": 0}`, MinMeasurementInterval},
		{"negative clamped up", `{"measurement_interval": -5}`, MinMeasurementInterval},
		{"too large clamped down", `{"measurement_interval": 900}`, MaxMeasurementInterval},
		{"lower bound", `{"measurement_interval": 1}`, 1},
		{"upper bound", `{"measurement_interval": 300}`, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "device_settings.json")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("writing file: %v", err)
			}

			s, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if s.MeasurementInterval != tt.want {
				t.Errorf("MeasurementInterval = %d, want %d", s.MeasurementInterval, tt.want)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device_settings.json")

	if err := Save(path, Settings{MeasurementInterval: 42}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.MeasurementInterval != 42 {
		t.Errorf("MeasurementInterval = %d, want 42", s.MeasurementInterval)
	}
}

func TestSave_ClampsInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_settings.json")

	if err := Save(path, Settings{MeasurementInterval: 9999}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.MeasurementInterval != MaxMeasurementInterval {
		t.Errorf("MeasurementInterval = %d, want %d", s.MeasurementInterval, MaxMeasurementInterval)
	}
}

func TestClampInterval(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{5, 5},
		{300, 300},
		{301, 300},
	}

	for _, tt := range tests {
		if got := ClampInterval(tt.in); got != tt.want {
			t.Errorf("ClampInterval(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
