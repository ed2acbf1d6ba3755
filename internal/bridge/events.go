package bridge

// ActionListener is notified when a single asynchronous operation completes.
//
// Callbacks run synchronously on the notification-dispatch goroutine, after
// the token's completion flag is set and waiters are released: a listener that
// checks IsComplete() on its token always observes true. Listeners should not
// block.
type ActionListener interface {
	// OnSuccess is invoked when the operation completes successfully.
	OnSuccess(token Token)

	// OnFailure is invoked when the operation fails. The cause is wrapped in
	// ErrEngine unless it already is a domain error.
	OnFailure(token Token, cause error)
}

// EventListener receives events that are not tied to a single operation:
// message arrival, connection state changes, and delivery confirmation.
//
// It is owned per client instance; independent clients do not share listener
// state. All callbacks run on the notification-dispatch goroutine.
type EventListener interface {
	// ConnectComplete is invoked when a connection is established. The
	// reconnect flag is true when the engine re-established a lost
	// connection; consumers typically re-subscribe in that case, since the
	// client does not track subscriptions as durable state.
	ConnectComplete(reconnect bool, serverURI string)

	// ConnectionLost is invoked when the connection to the broker goes away.
	// A nil cause indicates a clean, requested disconnect.
	ConnectionLost(cause error)

	// MessageArrived is invoked for each inbound message. In manual-ack mode
	// the message carries an ID that must be passed to AcknowledgeMessage.
	// A returned error is traced but does not suppress acknowledgment in
	// auto-ack mode.
	MessageArrived(topic string, msg *Message) error

	// DeliveryComplete is invoked exactly once per publish when the engine
	// confirms that delivery to the requested QoS has finished.
	DeliveryComplete(token *DeliveryToken)
}

// TraceListener receives diagnostic output from the dispatch layer.
// Traces never affect tokens or operations.
type TraceListener interface {
	TraceDebug(tag, message string)
	TraceError(tag, message string)
	TraceException(tag, message string, cause error)
}

// Logger is the optional logging interface accepted by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}
