// Package bridge tracks asynchronous broker operations and routes the
// connection engine's notifications back to application code.
//
// The engine boundary is a single channel of Notification values: every
// operation the Client initiates registers a Token under a correlation
// handle, the engine reports the outcome under the same handle, and the
// dispatch goroutine completes the token. Unsolicited events (arrivals,
// connection changes, delivery confirmations) reach the EventListener on the
// same goroutine, so listener callbacks never race each other.
//
// Publishes have a two-step lifecycle: the send result completes the token
// but keeps it registered, and the delivery confirmation unregisters it,
// releases the retained message, and fires DeliveryComplete. While the
// connection is down, publishes can be buffered (bounded, optionally
// persisted via the store package) and are replayed in order on reconnect.
//
// Inbound messages are acknowledged automatically after the arrival listener
// returns, or, in manual-ack mode, held until the application calls
// AcknowledgeMessage with the identifier stamped on the message.
package bridge
