// Package run manages workflow runs: their records, their lifecycle, and
// resumption from checkpoints.
//
// A Controller compiles a workflow, records a Run, executes it on the
// engine in the background, persists every checkpoint the engine reports,
// and finishes the record with exactly one terminal transition. Stores
// reject any change to a run that has reached a terminal status.
package run
