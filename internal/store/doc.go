// Package store persists publishes buffered while the broker connection is
// down, so that a process restart does not lose them.
//
// The store is a single SQLite table keyed by an auto-incrementing sequence
// number. Callers treat sequence numbers as opaque handles: a row is appended
// when a publish is buffered, listed at startup or on reconnect, and deleted
// once the message has been handed back to the broker.
//
// SQLite is configured the same way as elsewhere in the stack: WAL journal,
// busy timeout, single writer connection.
package store
