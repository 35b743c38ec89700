// Package mapmatch owns the particle state-transition engine for
// probabilistic map matching.
//
// Responsibilities: bounded enumeration of candidate road paths,
// generation of the initial particle population from a first
// observation, the per-step particle update (motion prediction,
// on/off-road transition, path sampling, belief reconstruction), and
// the sequential importance resampling loop that drives it.
// Key types: VehicleState, PathState, Path, Updater, Filter.
//
// Dependency rule: mapmatch may depend on geo and graph, but never on
// inference or storage. No SQL/database code is allowed in this
// package.
package mapmatch
