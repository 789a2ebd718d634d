// Package measurement stores the samples produced by device workers.
//
// SQLite is the system of record. Each sample carries the electrical
// reading (voltage, current, derived power) plus the device's cumulative
// energy counter at that instant. Workers append samples; the supervisor
// reads them for status reporting and purges them when a device is
// deleted.
//
// Sample timestamps are stored as fixed-width RFC 3339 text so the
// (device_id, timestamp) index orders chronologically; the autoincrement
// id breaks ties between samples taken in the same microsecond.
package measurement
