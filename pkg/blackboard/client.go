package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client provides namespaced Redis operations for sharing blackboard state
// between processes: instance-synced key values and committed plan records.
// All keys and channels are automatically namespaced.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	namespace string
	origin    string
}

// NewClient creates a new client for the specified namespace.
// Every client gets a random origin id, stamped on the sync messages it
// publishes so its own subscription can skip them.
//
// Returns an error if namespace is empty.
func NewClient(redisOpts *redis.Options, namespace string) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
		origin:    uuid.NewString(),
	}, nil
}

// Namespace returns the namespace the client was created for.
func (c *Client) Namespace() string { return c.namespace }

// Origin returns the id stamped on sync messages published by this client.
func (c *Client) Origin() string { return c.origin }

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PublishSynced stores the value of an instance-synced key in the schema's
// synced-value hash and publishes it on the schema's sync channel.
func (c *Client) PublishSynced(ctx context.Context, s *Schema, k *KeyInfo, value []byte) error {
	if !k.Traits.Has(TraitInstanceSynced) {
		return fmt.Errorf("key %q is not instance-synced", k.Name)
	}
	if len(value) != k.Size() {
		return fmt.Errorf("key %q expects %d bytes, got %d", k.Name, k.Size(), len(value))
	}

	msg := SyncMessage{
		Origin: c.origin,
		Schema: s.Name(),
		Key:    k.Name,
		Type:   k.Type.String(),
		Value:  value,
	}
	payload, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("failed to marshal sync message: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, SyncedValuesKey(c.namespace, s.Name()), k.Name, string(value))
	pipe.Publish(ctx, SyncChannel(c.namespace, s.Name()), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish synced key %q: %w", k.Name, err)
	}

	return nil
}

// LoadSynced applies every stored synced value of the schema to its canonical
// copy and registered instances. Fields that no longer match the schema are
// skipped. Returns the number of values applied.
func (c *Client) LoadSynced(ctx context.Context, s *Schema) (int, error) {
	hashData, err := c.rdb.HGetAll(ctx, SyncedValuesKey(c.namespace, s.Name())).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read synced values from Redis: %w", err)
	}

	applied := 0
	for name, value := range hashData {
		k, err := s.Key(name)
		if err != nil || !k.Traits.Has(TraitInstanceSynced) || len(value) != k.Size() {
			continue
		}
		if err := s.ApplySynced(k.Handle, []byte(value)); err != nil {
			return applied, err
		}
		applied++
	}

	return applied, nil
}

// SavePlan replaces the plan records of an agent and publishes each record on
// the plan events channel.
func (c *Client) SavePlan(ctx context.Context, agentID string, records []PlanRecord) error {
	for i := range records {
		if records[i].AgentID != agentID {
			return fmt.Errorf("plan record for layer %d belongs to agent %q, not %q", records[i].Layer, records[i].AgentID, agentID)
		}
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("invalid plan record: %w", err)
		}
	}

	hash, err := PlanRecordsToHash(records)
	if err != nil {
		return fmt.Errorf("failed to serialize plan: %w", err)
	}

	key := PlanKey(c.namespace, agentID)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(hash) > 0 {
		pipe.HSet(ctx, key, hash)
	}
	channel := PlanEventsChannel(c.namespace)
	for i := range records {
		payload, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("failed to marshal plan record for event: %w", err)
		}
		pipe.Publish(ctx, channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write plan to Redis: %w", err)
	}

	return nil
}

// GetPlans retrieves the plan records of an agent ordered by layer.
// Returns (nil, redis.Nil) if the agent has no stored plan.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetPlans(ctx context.Context, agentID string) ([]PlanRecord, error) {
	hashData, err := c.rdb.HGetAll(ctx, PlanKey(c.namespace, agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read plan from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	records, err := HashToPlanRecords(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize plan: %w", err)
	}

	return records, nil
}

// ScanAgents returns the ids of agents with a stored plan whose id starts with
// prefix, sorted. An empty prefix matches every agent.
// Uses SCAN so large namespaces do not block the server.
func (c *Client) ScanAgents(ctx context.Context, prefix string) ([]string, error) {
	head := PlanKey(c.namespace, "")
	head = head[:len(head)-len(":plan")]
	pattern := PlanKey(c.namespace, prefix+"*")

	var ids []string
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := strings.TrimSuffix(strings.TrimPrefix(key, head), ":plan")
		if isValidUUID(id) {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan plans: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// SyncSubscription represents an active Pub/Sub subscription to sync messages
// of one schema. Messages published by the subscribing client are filtered out.
type SyncSubscription struct {
	events <-chan *SyncMessage
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of sync messages.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *SyncSubscription) Events() <-chan *SyncMessage {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures; the offending message is skipped.
func (s *SyncSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *SyncSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// PlanSubscription represents an active Pub/Sub subscription to plan events.
type PlanSubscription struct {
	events <-chan *PlanRecord
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of plan records.
func (s *PlanSubscription) Events() <-chan *PlanRecord {
	return s.events
}

// Errors returns the channel of subscription errors.
func (s *PlanSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *PlanSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeSynced subscribes to sync messages of schema s.
// The subscription is confirmed by Redis before SubscribeSynced returns.
func (c *Client) SubscribeSynced(ctx context.Context, s *Schema) (*SyncSubscription, error) {
	events, errs, cancel, err := subscribe(ctx, c.rdb, SyncChannel(c.namespace, s.Name()),
		func(payload string) (*SyncMessage, bool, error) {
			var msg SyncMessage
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				return nil, false, fmt.Errorf("failed to unmarshal sync message: %w", err)
			}
			return &msg, msg.Origin != c.origin, nil
		})
	if err != nil {
		return nil, err
	}

	return &SyncSubscription{events: events, errors: errs, cancel: cancel}, nil
}

// SubscribePlanEvents subscribes to plan commits of every agent in the namespace.
func (c *Client) SubscribePlanEvents(ctx context.Context) (*PlanSubscription, error) {
	events, errs, cancel, err := subscribe(ctx, c.rdb, PlanEventsChannel(c.namespace),
		func(payload string) (*PlanRecord, bool, error) {
			var r PlanRecord
			if err := json.Unmarshal([]byte(payload), &r); err != nil {
				return nil, false, fmt.Errorf("failed to unmarshal plan event: %w", err)
			}
			return &r, true, nil
		})
	if err != nil {
		return nil, err
	}

	return &PlanSubscription{events: events, errors: errs, cancel: cancel}, nil
}

// subscribe runs the receive loop shared by every subscription type.
// decode returns keep=false to drop a message silently.
func subscribe[T any](ctx context.Context, rdb *redis.Client, channel string,
	decode func(payload string) (msg *T, keep bool, err error)) (<-chan *T, <-chan error, func(), error) {

	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	// Create buffered channels for events and errors
	eventsChan := make(chan *T, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				event, keep, err := decode(msg.Payload)
				if err != nil {
					// Send error on error channel, skip message
					select {
					case errorsChan <- err:
					case <-subCtx.Done():
						return
					}
					continue
				}
				if !keep {
					continue
				}

				select {
				case eventsChan <- event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return eventsChan, errorsChan, cancelFunc, nil
}

// IsNotFound returns true if the error indicates a key was not found in Redis.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
