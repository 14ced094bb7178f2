// Package dag holds the graph algorithms the workflow compiler relies on:
// port-aware edges, Kahn ordering with deterministic tie-breaking, cycle
// reporting, and dependency levels.
//
// Node identity is a plain string and declaration order is significant: when
// several nodes are ready at once, the one declared first is ordered first.
package dag
