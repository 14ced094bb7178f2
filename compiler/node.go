package compiler

import (
	"github.com/kbukum/flowkit/processor"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/resilience"
	"github.com/kbukum/flowkit/workflow"
)

// Node is the executable form of one workflow node. Exactly one of Source,
// Sink, Transform, or Predicate is set, matching Kind.
type Node struct {
	ID    string
	Kind  workflow.NodeKind
	Index int // declaration index in the workflow

	// Provider is the registered provider id for sources and sinks.
	Provider string
	Source   provider.Source
	Sink     provider.Sink
	// Retry is the effective backoff for transient source and sink failures:
	// defaults, then the provider's declaration, then the node override.
	Retry resilience.RetryConfig

	BatchSize   int
	Parallelism int
	RateLimit   float64

	// Processor is the registered transform or predicate id.
	Processor string
	Transform processor.Transform

	Predicate   processor.Predicate
	TrueBranch  string
	FalseBranch string
}

// Branch returns the label an item leaves a switch on.
func (n *Node) Branch(matched bool) string {
	if matched {
		return n.TrueBranch
	}
	return n.FalseBranch
}

// IsFlusher reports whether the node's transform retains items between calls.
func (n *Node) IsFlusher() bool {
	_, ok := n.Transform.(processor.Flusher)
	return ok
}
