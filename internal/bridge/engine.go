package bridge

import "time"

// Engine is the connection engine the client drives. All operation methods
// must return quickly: the engine performs the network work in the background
// and reports the outcome as a Notification carrying the given handle.
//
// A returned error means the operation could not even be started; no
// notification will follow for that handle.
type Engine interface {
	// Connect starts a connection attempt.
	Connect(opts ConnectOptions, handle string) error

	// Publish hands a message to the engine. The returned DeliveryHandle, if
	// non-nil, exposes engine-native metadata for the in-flight message.
	Publish(topic string, payload []byte, qos byte, retained bool, handle string) (DeliveryHandle, error)

	// Subscribe registers interest in the given topic filters. topics and qos
	// have equal length.
	Subscribe(topics []string, qos []byte, handle string) error

	// Unsubscribe removes interest in the given topic filters.
	Unsubscribe(topics []string, handle string) error

	// Disconnect closes the connection, allowing up to quiesce for in-flight
	// work to finish.
	Disconnect(quiesce time.Duration, handle string) error

	// IsConnected reports the engine's view of the connection.
	IsConnected() bool

	// Acknowledge releases an inbound message previously tagged with
	// messageID, completing its QoS flow. Returns false if the engine no
	// longer holds the message.
	Acknowledge(messageID string) bool
}

// DeliveryHandle is the engine-native handle for an in-flight publish. The
// delivery token defers to it for metadata the client does not track itself.
type DeliveryHandle interface {
	// MessageID is the wire-level packet identifier assigned by the engine.
	MessageID() uint16
}

// ConnectOptions carries per-connect parameters. Zero values fall back to the
// client's configuration.
type ConnectOptions struct {
	Username   string
	Password   string
	CleanStart bool
	KeepAlive  time.Duration
}
