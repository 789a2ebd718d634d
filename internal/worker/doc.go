// Package worker runs one device's sampling loop.
//
// A worker is the body of an isolated per-device process: generate a
// reading, persist it, forward it to the telemetry uplink and the
// optional time-series mirror, sleep for the configured interval,
// repeat until the context is cancelled.
//
// The cumulative energy counter (kwh) is the only state carried across
// iterations. It resumes from the device's last stored sample at
// startup and advances by power × elapsed time per persisted sample; a
// failed persist leaves the counter where it was, so the next stored
// sample accounts for the whole gap. Within one device the loop is
// strictly sequential, which is what makes "previous sample"
// well-defined.
//
// The sampling interval and uplink settings are read once, before the
// loop starts. Changing either affects workers started afterward, never
// a running one.
package worker
