// Package persistence provides durable storage for unacknowledged envelopes.
// One record per envelope, keyed by id, written before enqueue and deleted on
// acknowledgment; everything is loaded wholesale at startup for at-least-once
// redelivery. Storage is best-effort: the bus logs failures and keeps going.
package persistence
