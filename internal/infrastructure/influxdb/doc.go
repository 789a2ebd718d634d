// Package influxdb provides an optional time-series mirror for
// measurement samples.
//
// It wraps the official influxdb-client-go v2 library. When enabled, each
// worker mirrors the samples it persists to SQLite into an InfluxDB
// bucket, which makes ad-hoc dashboarding (Grafana, the Influx UI)
// possible without touching the primary store. The mirror is best-effort:
// SQLite remains the system of record and write failures never interrupt
// the sampling loop.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a mirror
//	}
//	defer client.Close()
//
//	client.WriteSample("pv001", "pv", 231.4, 9.8, 2267.7, 3.1, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. The underlying write API uses
// non-blocking batched writes; async failures surface via SetOnError.
package influxdb
