// Package contracts defines the envelope schema and error taxonomy shared by
// all bus components. Envelopes are immutable after creation except for
// delivery bookkeeping (status, retry counter, attempt log, acknowledgment),
// which only the bus mutates.
package contracts
