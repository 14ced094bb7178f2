package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
)

// call is one invocation of provider or processor code for a node.
type call func(ctx context.Context) error

// traced runs c inside a span named after the node kind.
func traced(c call, runID string, s *stage) call {
	return func(ctx context.Context) error {
		ctx, span := observability.StartSpan(ctx, observability.SpanNode(string(s.node.Kind)),
			attribute.String(observability.AttrRunID, runID),
			attribute.String(observability.AttrNodeID, s.node.ID),
		)
		defer span.End()
		err := c(ctx)
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		return err
	}
}

// timed records the call in the node duration histogram.
func timed(c call, m *observability.Metrics, s *stage) call {
	return func(ctx context.Context) error {
		start := time.Now()
		err := c(ctx)
		m.NodeDuration(context.WithoutCancel(ctx), s.node.ID, string(s.node.Kind), time.Since(start))
		return err
	}
}

// logged reports each call at debug level. Failures are reported again by
// the engine once they are classified.
func logged(c call, s *stage) call {
	return func(ctx context.Context) error {
		start := time.Now()
		err := c(ctx)
		fields := logger.DurationFields("call", time.Since(start))
		if err != nil {
			s.log.WithError(err).Debug("Node call failed", fields)
			return err
		}
		s.log.Debug("Node call completed", fields)
		return nil
	}
}
