package agentbus

import (
	"context"
	"sort"
	"sync"

	"github.com/meshify/agentbus-go/contracts"
)

// DeliveryHandler is the hook an agent exposes to the dispatcher. A non-nil
// returned envelope is treated as an immediate inbound reply and fed back
// through Receive.
type DeliveryHandler func(ctx context.Context, env *contracts.Envelope) (*contracts.Envelope, error)

// Roster enumerates the agents a broadcast fans out to. It is injected at
// construction; by default the bus uses its own handler registry.
type Roster interface {
	Agents() []string
}

// StaticRoster is a fixed list of agent identifiers.
type StaticRoster []string

// Agents returns a copy of the roster.
func (r StaticRoster) Agents() []string {
	return append([]string(nil), r...)
}

// AgentRegistry maps agent identifiers to their delivery handlers. It
// implements Roster over the registered agents.
type AgentRegistry struct {
	mu       sync.RWMutex
	handlers map[string]DeliveryHandler
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{handlers: make(map[string]DeliveryHandler)}
}

// Register attaches a handler for the agent id, replacing any previous one.
func (r *AgentRegistry) Register(agentID string, handler DeliveryHandler) {
	r.mu.Lock()
	r.handlers[agentID] = handler
	r.mu.Unlock()
}

// Unregister detaches the agent's handler.
func (r *AgentRegistry) Unregister(agentID string) {
	r.mu.Lock()
	delete(r.handlers, agentID)
	r.mu.Unlock()
}

// Lookup returns the handler registered for the agent id.
func (r *AgentRegistry) Lookup(agentID string) (DeliveryHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[agentID]
	return handler, ok
}

// Agents returns the registered agent ids, sorted.
func (r *AgentRegistry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return agents
}
