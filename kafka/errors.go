package kafka

import (
	"context"
	stderrors "errors"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/flowkit/errors"
)

// IsConnectionError checks if a Kafka error is a connection-level error.
func IsConnectionError(err error) bool {
	return matchAny(err,
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no route to host",
		"network is unreachable",
		"broker not available",
		"leader not available",
		"connection closed",
		"dial tcp",
		"network exception",
	)
}

// IsRetryableError determines if a Kafka error should trigger a retry.
func IsRetryableError(err error) bool {
	if IsConnectionError(err) {
		return true
	}
	return matchAny(err,
		"temporary",
		"request timed out",
		"not enough replicas",
		"offset out of range",
	)
}

// IsNonRetryableError checks if the error should not be retried.
func IsNonRetryableError(err error) bool {
	return matchAny(err,
		"message too large",
		"invalid topic",
		"invalid partition",
		"unknown topic",
		"authorization failed",
		"sasl authentication failed",
	)
}

func matchAny(err error, patterns ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// FromKafka converts a Kafka client error into a classified provider error.
// Protocol errors use their own Temporary flag; everything else is matched
// on its message.
func FromKafka(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	var kerr kafkago.Error
	if stderrors.As(err, &kerr) {
		if kerr.Temporary() {
			return errors.Transient(op, err)
		}
		return errors.Permanent(op, err)
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Transient(op, err)
	case IsConnectionError(err):
		return errors.ConnectionFailed("kafka", err)
	case IsNonRetryableError(err):
		return errors.Permanent(op, err)
	case IsRetryableError(err):
		return errors.Transient(op, err)
	default:
		return errors.Permanent(op, err)
	}
}
