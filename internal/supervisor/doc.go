// Package supervisor owns the device fleet: it allocates device
// identities, spawns and terminates one worker process per device, and
// keeps the persisted status document in line with reality.
//
// The supervisor holds the only worker-handle map in the daemon. Device
// records themselves live in the shared status file (statefile.Store);
// every mutation here is a whole-file read-modify-write of that
// document. Liveness is never trusted from the persisted status field
// while a handle exists: a crashed worker is observed through its
// handle and reported as stopped, and Reconcile demotes any record
// still marked active after a daemon restart, because no worker can
// have survived one.
//
// Control-plane mutations (StartDevice, StopDevice, DeleteDevice)
// report plain success booleans; the cause of a failure goes to the
// log. AddDevice is the exception: identity allocation must be durable
// before the id is handed out, so a persist failure surfaces as an
// error.
package supervisor
