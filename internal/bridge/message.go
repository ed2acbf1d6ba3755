package bridge

// Message is an application message exchanged with the broker.
//
// For outbound publishes the client owns the Message until the engine confirms
// delivery. For inbound arrivals the Message is handed to the event listener
// and must not be mutated by the client afterwards.
type Message struct {
	// Payload is the raw message body.
	Payload []byte

	// QoS is the quality of service level (0, 1, or 2).
	QoS byte

	// Retained marks the message as retained by the broker.
	Retained bool

	// Duplicate is set on inbound messages redelivered by the broker.
	Duplicate bool

	// ID tags an inbound message for manual acknowledgment. It is only set
	// when the client was constructed in manual-ack mode; pass it to
	// Client.AcknowledgeMessage once the message has been processed.
	ID string
}
