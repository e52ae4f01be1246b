package persistence

import (
	"context"
	"fmt"

	"github.com/meshify/agentbus-go/contracts"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "agentbus:pending:"

// RedisStore keeps one key per pending envelope in Redis, so recovery works
// across process hosts sharing the same instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the key prefix for pending records.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore wraps an existing client. The caller owns connection
// configuration; Close closes the client.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes the envelope record under its id key.
func (s *RedisStore) Save(ctx context.Context, env *contracts.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return &contracts.PersistenceError{Op: "save", EnvelopeID: env.ID, Err: err}
	}
	if err := s.client.Set(ctx, s.key(env.ID), data, 0).Err(); err != nil {
		return &contracts.PersistenceError{Op: "save", EnvelopeID: env.ID, Err: err}
	}
	return nil
}

// Delete removes the record for id.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return &contracts.PersistenceError{Op: "delete", EnvelopeID: id, Err: err}
	}
	return nil
}

// LoadAll scans the key prefix and returns every stored envelope.
func (s *RedisStore) LoadAll(ctx context.Context) ([]*contracts.Envelope, error) {
	var envelopes []*contracts.Envelope

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, &contracts.PersistenceError{Op: "load", Err: err}
		}
		env, err := contracts.UnmarshalEnvelope(data)
		if err != nil {
			return nil, &contracts.PersistenceError{Op: "load", Err: err}
		}
		envelopes = append(envelopes, env)
	}
	if err := iter.Err(); err != nil {
		return nil, &contracts.PersistenceError{Op: "load", Err: fmt.Errorf("scan: %w", err)}
	}
	return envelopes, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(id string) string { return s.prefix + id }
