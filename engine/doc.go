// Package engine executes compiled workflow graphs as streaming processes.
//
// Every source runs in its own lane goroutine. Transform and switch nodes
// each own one goroutine reading a bounded input queue, and sinks run as
// many writers as their parallelism allows. A full queue blocks its
// producers, so memory stays bounded no matter how large a source is.
// Calls into processors, predicates, and sink providers share one worker
// bulkhead per run.
//
// Each item read from a source receives a ticket. Items derived from it
// carry the ticket until a sink write returns or the item is dropped. The
// source's checkpoint advances over the longest prefix of tickets with no
// outstanding work, so a reported cursor never covers an item whose effects
// are not yet durable.
package engine
