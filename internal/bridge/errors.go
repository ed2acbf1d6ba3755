package bridge

import "errors"

// Domain-specific errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("bridge: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic or empty topic list is provided.
	ErrInvalidTopic = errors.New("bridge: topic cannot be empty")

	// ErrTopicQoSMismatch is returned when the topic and QoS slices passed to a
	// subscribe operation have different lengths.
	ErrTopicQoSMismatch = errors.New("bridge: topics and QoS levels must have the same length")

	// ErrNotConnected is returned when an operation requires a live connection
	// and no disconnected buffering applies.
	ErrNotConnected = errors.New("bridge: client not connected")

	// ErrEngine wraps any failure reported asynchronously by the connection
	// engine for a specific operation.
	ErrEngine = errors.New("bridge: engine operation failed")

	// ErrClientTimeout is returned by a bounded wait that elapses before the
	// operation completes. It says nothing about the operation itself, which
	// may still succeed or fail later.
	ErrClientTimeout = errors.New("bridge: timed out waiting for operation to complete")

	// ErrBufferFull is returned (or recorded on an evicted token) when the
	// disconnected buffer cannot hold another message.
	ErrBufferFull = errors.New("bridge: disconnected buffer is full")

	// ErrHandleUnbound is returned when an accessor that forwards to the
	// engine-native delivery handle is called before the handle is bound.
	ErrHandleUnbound = errors.New("bridge: engine delivery handle not yet bound")
)

// domainErrors lists every sentinel above, so failure causes that already
// carry domain meaning are not re-wrapped at the engine boundary.
var domainErrors = []error{
	ErrInvalidQoS,
	ErrInvalidTopic,
	ErrTopicQoSMismatch,
	ErrNotConnected,
	ErrEngine,
	ErrClientTimeout,
	ErrBufferFull,
	ErrHandleUnbound,
}

func isDomainError(err error) bool {
	for _, sentinel := range domainErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// wrapEngineCause wraps a failure cause in ErrEngine so callers can match the
// whole class with errors.Is while still unwrapping the original cause.
func wrapEngineCause(cause error) error {
	if cause == nil {
		return ErrEngine
	}
	return errors.Join(ErrEngine, cause)
}
