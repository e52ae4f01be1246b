package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KindTag discriminates the message-kind variant.
type KindTag string

const (
	KindPing   KindTag = "ping"
	KindPong   KindTag = "pong"
	KindAck    KindTag = "ack"
	KindCustom KindTag = "custom"
)

// Kind is a tagged variant identifying what an envelope carries. Control
// kinds (ping, pong, ack) are handled by the bus itself; custom kinds carry
// an application-defined type name and are dispatched to agents.
type Kind struct {
	tag  KindTag
	name string
}

// Ping is the liveness-probe control kind.
func Ping() Kind { return Kind{tag: KindPing} }

// Pong is the liveness-probe reply kind.
func Pong() Kind { return Kind{tag: KindPong} }

// Ack is the acknowledgment control kind.
func Ack() Kind { return Kind{tag: KindAck} }

// Custom returns an application-defined kind with the given type name.
// Reserved control names are coerced to their control variants so a custom
// "ack" cannot masquerade past the bus.
func Custom(name string) Kind {
	switch KindTag(name) {
	case KindPing:
		return Ping()
	case KindPong:
		return Pong()
	case KindAck:
		return Ack()
	}
	return Kind{tag: KindCustom, name: name}
}

// Tag returns the variant discriminator.
func (k Kind) Tag() KindTag { return k.tag }

// Name returns the custom type name, or the tag itself for control kinds.
func (k Kind) Name() string {
	if k.tag == KindCustom {
		return k.name
	}
	return string(k.tag)
}

// IsControl reports whether the kind is processed by the bus rather than an
// agent handler.
func (k Kind) IsControl() bool {
	return k.tag == KindPing || k.tag == KindPong || k.tag == KindAck
}

// String returns the wire name of the kind.
func (k Kind) String() string { return k.Name() }

// MarshalJSON encodes control kinds as their tag and custom kinds as
// "custom:<name>".
func (k Kind) MarshalJSON() ([]byte, error) {
	if k.tag == KindCustom {
		return json.Marshal("custom:" + k.name)
	}
	if k.tag == "" {
		return nil, fmt.Errorf("marshal zero-value kind")
	}
	return json.Marshal(string(k.tag))
}

// UnmarshalJSON decodes a kind from its wire name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if custom, ok := strings.CutPrefix(name, "custom:"); ok {
		*k = Kind{tag: KindCustom, name: custom}
		return nil
	}
	switch KindTag(name) {
	case KindPing, KindPong, KindAck:
		*k = Kind{tag: KindTag(name)}
		return nil
	}
	return fmt.Errorf("unknown kind %q", name)
}

// NewAck builds the acknowledgment envelope for a delivered message. The
// correlation id references the original envelope's id so the tracker can
// resolve the pending entry.
func NewAck(original *Envelope, sender string) *Envelope {
	return NewEnvelope(sender, original.Sender, Ack(), nil,
		WithCorrelationID(original.ID),
		WithPriority(PriorityHigh),
	)
}

// NewPong builds the reply to a ping, preserving the ping's correlation id.
func NewPong(ping *Envelope, sender string) *Envelope {
	recipient := ping.ReplyTo
	if recipient == "" {
		recipient = ping.Sender
	}
	return NewEnvelope(sender, recipient, Pong(), nil,
		WithCorrelationID(ping.CorrelationID),
		WithPriority(PriorityHigh),
	)
}

// NewReply builds a reply envelope for a request, carrying the request's
// correlation id back to its reply-to address (the sender when unset).
func NewReply(request *Envelope, sender string, kind Kind, payload []byte) *Envelope {
	recipient := request.ReplyTo
	if recipient == "" {
		recipient = request.Sender
	}
	return NewEnvelope(sender, recipient, kind, payload,
		WithCorrelationID(request.CorrelationID),
		WithPriority(request.Priority),
	)
}
