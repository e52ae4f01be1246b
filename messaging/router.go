package messaging

import (
	"sort"
	"strings"
	"sync"
)

// TopicRouter maps topic strings to subscriber sets. A pattern ending in "*"
// matches every topic that starts with the pattern minus the trailing star;
// all other subscriptions match exactly. The router holds routing state only,
// never message content.
type TopicRouter struct {
	mu       sync.RWMutex
	exact    map[string]map[string]struct{}
	patterns map[string]map[string]struct{} // keyed by prefix, "*" stripped
}

// NewTopicRouter creates an empty router.
func NewTopicRouter() *TopicRouter {
	return &TopicRouter{
		exact:    make(map[string]map[string]struct{}),
		patterns: make(map[string]map[string]struct{}),
	}
}

// Subscribe registers a subscriber under a topic or trailing-wildcard
// pattern. Subscribing twice is a no-op.
func (r *TopicRouter) Subscribe(topic, subscriber string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.exact
	key := topic
	if prefix, ok := strings.CutSuffix(topic, "*"); ok {
		set = r.patterns
		key = prefix
	}
	if set[key] == nil {
		set[key] = make(map[string]struct{})
	}
	set[key][subscriber] = struct{}{}
}

// Unsubscribe removes a subscriber from a topic or pattern. Removing an
// absent subscription is a no-op.
func (r *TopicRouter) Unsubscribe(topic, subscriber string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.exact
	key := topic
	if prefix, ok := strings.CutSuffix(topic, "*"); ok {
		set = r.patterns
		key = prefix
	}
	if subs, ok := set[key]; ok {
		delete(subs, subscriber)
		if len(subs) == 0 {
			delete(set, key)
		}
	}
}

// Resolve returns the union of subscribers registered under the exact topic
// and under any matching wildcard pattern, sorted for determinism.
func (r *TopicRouter) Resolve(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	union := make(map[string]struct{})
	for sub := range r.exact[topic] {
		union[sub] = struct{}{}
	}
	for prefix, subs := range r.patterns {
		if strings.HasPrefix(topic, prefix) {
			for sub := range subs {
				union[sub] = struct{}{}
			}
		}
	}

	resolved := make([]string, 0, len(union))
	for sub := range union {
		resolved = append(resolved, sub)
	}
	sort.Strings(resolved)
	return resolved
}

// TopicCount returns the number of distinct topics and patterns with at
// least one subscriber.
func (r *TopicRouter) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.patterns)
}

// SubscriberCount returns the total number of subscriptions.
func (r *TopicRouter) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, subs := range r.exact {
		count += len(subs)
	}
	for _, subs := range r.patterns {
		count += len(subs)
	}
	return count
}
