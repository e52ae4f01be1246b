package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders envelopes within a lane. Higher values dispatch first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Rank returns the numeric ordering value used by lane comparison keys.
func (p Priority) Rank() int { return int(p) }

// MarshalJSON encodes the priority as its name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a priority from its name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for prio, n := range priorityNames {
		if n == name {
			*p = prio
			return nil
		}
	}
	return fmt.Errorf("unknown priority %q", name)
}

// DeliveryGuarantee describes the redelivery contract for an envelope.
type DeliveryGuarantee string

const (
	AtMostOnce  DeliveryGuarantee = "at-most-once"
	AtLeastOnce DeliveryGuarantee = "at-least-once"
	ExactlyOnce DeliveryGuarantee = "exactly-once"
)

// Status is the delivery lifecycle state of an envelope. Transitions only
// move forward; see Transition.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusRetry      Status = "retry"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusExpired, StatusFailed},
	StatusProcessing: {StatusDelivered, StatusRetry, StatusFailed, StatusExpired},
	StatusRetry:      {StatusProcessing, StatusFailed, StatusExpired},
}

// CanTransition reports whether moving from s to next is a legal forward
// transition in the delivery state machine.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusExpired
}

// DeliveryAttempt records one dispatch of an envelope to its recipient.
type DeliveryAttempt struct {
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Envelope is the unit of transport between agents. The identity fields
// (ID, CreatedAt, Sender, Recipient, Kind, Payload, CorrelationID, ExpiresAt)
// are fixed at creation; the delivery bookkeeping fields are mutated only by
// the bus dispatch loop and tracker.
type Envelope struct {
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"createdAt"`
	Sender        string            `json:"sender"`
	Recipient     string            `json:"recipient,omitempty"`
	Topic         string            `json:"topic,omitempty"`
	Kind          Kind              `json:"kind"`
	Payload       []byte            `json:"payload,omitempty"`
	Priority      Priority          `json:"priority"`
	CorrelationID string            `json:"correlationId"`
	ReplyTo       string            `json:"replyTo,omitempty"`
	TTLSeconds    int64             `json:"ttlSeconds,omitempty"`
	ExpiresAt     time.Time         `json:"expiresAt"`
	RequiresAck   bool              `json:"requiresAck,omitempty"`
	Guarantee     DeliveryGuarantee `json:"guarantee"`
	Status        Status            `json:"status"`
	RetryCount    int               `json:"retryCount,omitempty"`
	Attempts      []DeliveryAttempt `json:"attempts,omitempty"`
	Acknowledged  bool              `json:"acknowledged,omitempty"`
	AckedAt       time.Time         `json:"ackedAt"`
}

// EnvelopeOption configures an envelope at creation.
type EnvelopeOption func(*Envelope)

// WithPriority sets the envelope priority.
func WithPriority(p Priority) EnvelopeOption {
	return func(e *Envelope) { e.Priority = p }
}

// WithTTL sets the time-to-live in seconds. Zero means the envelope never
// expires.
func WithTTL(seconds int64) EnvelopeOption {
	return func(e *Envelope) { e.TTLSeconds = seconds }
}

// WithRequiresAck marks the envelope as requiring an explicit acknowledgment.
func WithRequiresAck() EnvelopeOption {
	return func(e *Envelope) {
		e.RequiresAck = true
		e.Guarantee = AtLeastOnce
	}
}

// WithGuarantee sets the delivery guarantee.
func WithGuarantee(g DeliveryGuarantee) EnvelopeOption {
	return func(e *Envelope) { e.Guarantee = g }
}

// WithReplyTo sets the identifier replies should be addressed to.
func WithReplyTo(replyTo string) EnvelopeOption {
	return func(e *Envelope) { e.ReplyTo = replyTo }
}

// WithCorrelationID overrides the correlation id. It can only be set here;
// the field never changes after creation.
func WithCorrelationID(id string) EnvelopeOption {
	return func(e *Envelope) { e.CorrelationID = id }
}

// WithTopic records the topic an envelope was fanned out from.
func WithTopic(topic string) EnvelopeOption {
	return func(e *Envelope) { e.Topic = topic }
}

// NewEnvelope creates an envelope with a generated id and UTC creation
// timestamp. The correlation id defaults to the envelope's own id and the
// absolute expiry is derived once from the TTL.
func NewEnvelope(sender, recipient string, kind Kind, payload []byte, opts ...EnvelopeOption) *Envelope {
	e := &Envelope{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Sender:    sender,
		Recipient: recipient,
		Kind:      kind,
		Payload:   payload,
		Priority:  PriorityNormal,
		Guarantee: AtMostOnce,
		Status:    StatusPending,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.CorrelationID == "" {
		e.CorrelationID = e.ID
	}
	if e.TTLSeconds > 0 {
		e.ExpiresAt = e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
	}
	return e
}

// IsExpiredAt reports whether the envelope's TTL has elapsed at the given
// instant. Envelopes without a TTL never expire.
func (e *Envelope) IsExpiredAt(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// IsExpired reports whether the envelope's TTL has elapsed.
func (e *Envelope) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// Transition advances the delivery status. Illegal transitions return
// ErrInvalidTransition so state-machine violations surface at the call site.
func (e *Envelope) Transition(next Status) error {
	if !e.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (envelope %s)", ErrInvalidTransition, e.Status, next, e.ID)
	}
	e.Status = next
	return nil
}

// RecordAttempt appends a delivery attempt to the attempt log.
func (e *Envelope) RecordAttempt(at time.Time, success bool, attemptErr error) {
	attempt := DeliveryAttempt{At: at, Success: success}
	if attemptErr != nil {
		attempt.Error = attemptErr.Error()
	}
	e.Attempts = append(e.Attempts, attempt)
}

// MarkAcknowledged records the acknowledgment. An acknowledged envelope must
// never reappear in a lane or the persistence store.
func (e *Envelope) MarkAcknowledged(at time.Time) {
	e.Acknowledged = true
	e.AckedAt = at
}

// Clone returns a deep copy of the envelope. Used when snapshotting into the
// dead-letter log or message history so later mutation cannot leak.
func (e *Envelope) Clone() *Envelope {
	dup := *e
	if e.Payload != nil {
		dup.Payload = append([]byte(nil), e.Payload...)
	}
	if e.Attempts != nil {
		dup.Attempts = append([]DeliveryAttempt(nil), e.Attempts...)
	}
	return &dup
}

// Marshal serializes the envelope to JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope deserializes an envelope from JSON.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &e, nil
}
