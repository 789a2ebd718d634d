// Package statefile persists the fleet roster to a single JSON file.
//
// The file holds two maps: per-type ID allocation counters and one entry
// per device recording its type, lifecycle status, and platform
// registration details. The daemon owns counters and lifecycle fields;
// worker processes write the registration fields after a successful
// platform registration. Both sides rewrite the whole file on every
// change.
//
// The store mutex serialises read-modify-write cycles within one process
// only. Because the daemon and its workers are separate processes sharing
// the same file, concurrent cross-process updates are last-writer-wins: a
// worker saving its registration while the daemon saves a new device can
// drop one of the two changes. The window is small and a lost update is
// recoverable (registration is retried, the roster is re-saved on the
// next change), so the format stays a plain file rather than moving this
// state into the database.
//
// A device entry's status field records intent (the device was started or
// stopped), not ground truth. The supervisor recomputes liveness from the
// process handles it holds in memory and reconciles stale entries at boot.
package statefile
