// Package devicetype defines the simulated device variants and generates
// their electrical readings.
//
// A Registry maps each variant (PV inverter, heat pump, grid-tie meter)
// to its identifier prefix, display label, and realistic voltage/current
// ranges. Device identifiers are built from the type's ID prefix plus a
// per-type counter ("pv001", "heatpump002"), so the registry can also
// resolve an identifier back to its type.
//
// Adding a variant is a table entry via Register, not a new Go type.
package devicetype
