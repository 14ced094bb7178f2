// Package workflow is the serializable definition model of a pipeline: nodes,
// edges, and named cache slots. It also hosts the two pure passes that run
// before compilation, Validate and ResolveCacheSlots.
package workflow
