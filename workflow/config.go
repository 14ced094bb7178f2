package workflow

import (
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/validation"
)

// Default switch branch labels.
const (
	DefaultTrueBranch  = "true"
	DefaultFalseBranch = "false"
)

// RetryPolicy overrides a provider's declared backoff for one node.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts" validate:"gte=0"`
	InitialBackoff time.Duration `json:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `json:"max_backoff" validate:"gte=0"`
	Factor         float64       `json:"factor" validate:"gte=0"`
}

// SourceConfig configures a source node.
type SourceConfig struct {
	Provider   string         `json:"provider" validate:"required"`
	Connection string         `json:"connection"`
	Params     map[string]any `json:"params"`
	Retry      *RetryPolicy   `json:"retry"`
}

// SinkConfig configures a sink node.
type SinkConfig struct {
	Provider   string         `json:"provider" validate:"required"`
	Connection string         `json:"connection"`
	Params     map[string]any `json:"params"`
	Retry      *RetryPolicy   `json:"retry"`
	// BatchSize caps how many queued items one write call receives.
	BatchSize int `json:"batch_size" validate:"gte=0"`
	// Parallelism is the number of concurrent writers. Values above one need
	// a provider that is safe for concurrent use.
	Parallelism int `json:"parallelism" validate:"gte=0"`
	// RateLimit caps written items per second. Zero means unlimited.
	RateLimit float64 `json:"rate_limit" validate:"gte=0"`
}

// TransformConfig configures a transform node.
type TransformConfig struct {
	Processor string         `json:"processor" validate:"required"`
	Params    map[string]any `json:"params"`
}

// Condition names a predicate and its parameters.
type Condition struct {
	Predicate string         `json:"predicate" validate:"required"`
	Params    map[string]any `json:"params"`
}

// SwitchConfig configures a switch node: a condition and two branch labels.
type SwitchConfig struct {
	Condition   Condition `json:"condition"`
	TrueBranch  string    `json:"true_branch"`
	FalseBranch string    `json:"false_branch"`
}

// Branches returns the branch labels with defaults applied.
func (c SwitchConfig) Branches() (onTrue, onFalse string) {
	onTrue, onFalse = c.TrueBranch, c.FalseBranch
	if onTrue == "" {
		onTrue = DefaultTrueBranch
	}
	if onFalse == "" {
		onFalse = DefaultFalseBranch
	}
	return onTrue, onFalse
}

// SourceConfig decodes the node's config as a source.
func (n Node) SourceConfig() (SourceConfig, error) {
	var c SourceConfig
	return c, n.decode(KindSource, &c)
}

// SinkConfig decodes the node's config as a sink.
func (n Node) SinkConfig() (SinkConfig, error) {
	var c SinkConfig
	return c, n.decode(KindSink, &c)
}

// TransformConfig decodes the node's config as a transform.
func (n Node) TransformConfig() (TransformConfig, error) {
	var c TransformConfig
	return c, n.decode(KindTransform, &c)
}

// SwitchConfig decodes the node's config as a switch and checks that the two
// branch labels differ.
func (n Node) SwitchConfig() (SwitchConfig, error) {
	var c SwitchConfig
	if err := n.decode(KindSwitch, &c); err != nil {
		return c, err
	}
	if t, f := c.Branches(); t == f {
		return c, errors.InvalidParams("switch branches must have distinct labels").
			WithDetail("node_id", n.ID)
	}
	return c, nil
}

func (n Node) decode(want NodeKind, out any) error {
	if n.Kind != want {
		return errors.InvalidDefinition("node %q is a %s, not a %s", n.ID, n.Kind, want).
			WithDetail("node_id", n.ID)
	}
	if err := validation.Decode(n.Config, out); err != nil {
		if appErr, ok := errors.AsAppError(err); ok {
			return appErr.WithDetail("node_id", n.ID)
		}
		return err
	}
	return nil
}
