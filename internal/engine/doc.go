// Package engine derives view-ready facts from raw vault snapshots: odds
// splits, bet and claim states, projected bond values, lock countdowns,
// catalog pages and reward progress.
//
// Every function is pure. Inputs are never mutated and the wall clock is
// always passed in, so callers decide what "now" means.
package engine
