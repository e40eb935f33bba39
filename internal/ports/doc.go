// Package ports keeps the agent's view of the workspace ports.
//
// The supervisor sends the complete port set on every update. A Reconciler
// folds those snapshots into a table keyed by local port and reports what
// changed: ports added, updated and removed, plus an Edge for every port that
// just became both exposed and served. Edges fire once per transition, never
// on repeated snapshots of the same state.
package ports
