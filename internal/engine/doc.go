// Package engine drives the MQTT connection through paho.mqtt.golang and
// reports everything that happens as notifications on a single channel.
//
// The engine never calls back into the dispatch layer directly: operation
// results, inbound messages, and connection changes all cross the boundary as
// bridge.Notification values carrying the correlation handle the caller
// supplied. In manual-ack mode inbound messages are held by the engine until
// Acknowledge releases them, completing the QoS flow.
package engine
