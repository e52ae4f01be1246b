// Package agentbus implements an in-process message bus for multi-agent
// pipelines: priority lanes with FIFO tie-breaking, publish/subscribe fan-out
// with trailing-wildcard topics, delayed delivery, acknowledgment-based retry
// with crash-safe persistence, and a retention-bounded dead-letter log.
//
// Agents register delivery handlers on the bus and exchange envelopes
// (package contracts) carrying opaque payloads. The bus runs three supervised
// workers: a dispatcher draining the lanes, a scheduler releasing delayed
// envelopes, and a cleanup worker sweeping expired messages and overdue
// acknowledgments.
package agentbus
