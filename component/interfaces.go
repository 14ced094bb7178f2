package component

import "context"

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is a point-in-time report from one component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// OK reports whether h is healthy. Degraded is not OK.
func (h Health) OK() bool { return h.Status == StatusHealthy }

// String renders h as name=status or name=status(message).
func (h Health) String() string {
	s := h.Name + "=" + string(h.Status)
	if h.Message != "" {
		s += "(" + h.Message + ")"
	}
	return s
}

// Component is something a flowkit process starts before running workflows
// and stops after: a run store backend or the run controller.
//
// Stop must be safe to call after a failed Start.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description is what the startup summary prints for a component.
// An empty Name falls back to Component.Name.
type Description struct {
	Name    string
	Type    string
	Details string
}

type Describable interface {
	Describe() Description
}
