package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSample mirrors one measurement sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
// The sample's own timestamp is used so the mirror lines up with the
// SQLite store even when batches flush late.
//
// Parameters:
//   - deviceID: fleet device identifier (e.g. "pv001")
//   - deviceType: type identifier used as a tag (e.g. "pv")
//   - voltage, current, power, kwh: the sample values
//   - ts: the sample timestamp
func (c *Client) WriteSample(deviceID, deviceType string, voltage, current, power, kwh float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"measurements",
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
		},
		map[string]interface{}{
			"voltage": voltage,
			"current": current,
			"power":   power,
			"kwh":     kwh,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}
