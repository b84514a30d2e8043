// Package results turns the flat result buffer delivered by a VL53L5CX
// multi-zone ranging sensor into dimensioned matrices.
//
// The vendor buffer is a row-major DIM×DIM array for zone metadata and a
// row-major array of zones for per-target data, where each zone carries its
// TARGETS target slots back to back:
//
//	real world         vendor vector (2×2 zones, 2 targets)
//	[A B]              [A₁ A₂ B₁ B₂ C₁ C₂ D₁ D₂]
//	[C D]
//
// Matrices produced here are indexed [target][row][col] for per-target data
// and [row][col] for zone metadata, looking out through the sensor.
//
// Which fields exist is decided once, by a Layout, and applies to both the
// wire buffer and the decoded snapshot. Values that can only come from a
// desynchronised transport (negative distances, undefined status codes) are
// contract violations and panic with a *ContractError.
package results
