// Package process manages spawned device worker processes.
//
// Each simulated device runs as a child process of the daemon. A Handle
// wraps one spawned worker: it captures the worker's stdout/stderr into
// the daemon log, tracks liveness, and terminates the worker's whole
// process group with an escalating SIGTERM then SIGKILL sequence.
//
// Workers are one-shot: a worker that exits on its own is not restarted
// here. The supervisor observes the death through IsAlive and reports
// the device as stopped.
//
// Example usage:
//
//	h, err := process.Spawn(process.Config{
//	    Name:   "pv001",
//	    Binary: "/usr/local/bin/wattfleet",
//	    Args:   []string{"worker", "--device", "pv001", "--type", "pv"},
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer h.Terminate()
package process
