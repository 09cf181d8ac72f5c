package blackboard

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// SyncBridge mirrors the instance-synced keys of one schema through Redis.
//
// Local writes are captured by a schema hook and published from a background
// goroutine. Remote messages are queued and only applied when the owner calls
// Drain, so live instances are never written from a foreign goroutine.
type SyncBridge struct {
	client *Client
	schema *Schema
	logger *zap.Logger

	outbox chan outgoing
	unhook func()
	sub    *SyncSubscription

	mu      sync.Mutex
	pending []*SyncMessage
	dropped int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type outgoing struct {
	key   *KeyInfo
	value []byte
}

// NewSyncBridge creates a bridge for schema s. A nil logger disables logging.
func NewSyncBridge(client *Client, s *Schema, logger *zap.Logger) *SyncBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncBridge{
		client: client,
		schema: s,
		logger: logger.With(zap.String("schema", s.Name())),
		outbox: make(chan outgoing, 256),
	}
}

// Start loads the stored synced values, subscribes to remote writes and starts
// publishing local ones. The bridge runs until ctx is cancelled or Close is called.
func (b *SyncBridge) Start(ctx context.Context) error {
	loaded, err := b.client.LoadSynced(ctx, b.schema)
	if err != nil {
		return fmt.Errorf("failed to load synced values: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := b.client.SubscribeSynced(ctx, b.schema)
	if err != nil {
		cancel()
		return err
	}
	b.sub = sub
	b.cancel = cancel

	b.unhook = b.schema.OnSyncedWrite(func(k *KeyInfo, value []byte) {
		select {
		case b.outbox <- outgoing{key: k, value: value}:
		default:
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
	})

	b.wg.Add(2)
	go b.publishLoop(ctx)
	go b.receiveLoop(ctx)

	b.logger.Info("Sync bridge started", zap.Int("loaded", loaded))
	return nil
}

func (b *SyncBridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-b.outbox:
			if err := b.client.PublishSynced(ctx, b.schema, out.key, out.value); err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Warn("Failed to publish synced key", zap.String("key", out.key.Name), zap.Error(err))
			}
		}
	}
}

func (b *SyncBridge) receiveLoop(ctx context.Context) {
	defer b.wg.Done()
	events, errs := b.sub.Events(), b.sub.Errors()
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			b.mu.Lock()
			b.pending = append(b.pending, msg)
			b.mu.Unlock()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.logger.Warn("Sync subscription error", zap.Error(err))
		}
	}
}

// Pending returns the number of remote messages waiting for Drain.
func (b *SyncBridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Drain applies every queued remote write to the schema and its instances.
// It must be called from the goroutine that owns the instances.
// Returns the number of writes applied; invalid messages are logged and skipped.
func (b *SyncBridge) Drain() int {
	b.mu.Lock()
	queued := b.pending
	b.pending = nil
	dropped := b.dropped
	b.dropped = 0
	b.mu.Unlock()

	if dropped > 0 {
		b.logger.Warn("Dropped local synced writes, outbox full", zap.Int("dropped", dropped))
	}

	applied := 0
	for _, msg := range queued {
		k, err := msg.Validate(b.schema)
		if err != nil {
			b.logger.Warn("Rejected sync message", zap.String("origin", msg.Origin), zap.Error(err))
			continue
		}
		if err := b.schema.ApplySynced(k.Handle, msg.Value); err != nil {
			b.logger.Warn("Failed to apply sync message", zap.String("key", k.Name), zap.Error(err))
			continue
		}
		applied++
	}
	return applied
}

// Close stops the bridge and waits for its goroutines. Safe to call multiple times.
func (b *SyncBridge) Close() error {
	if b.unhook != nil {
		b.unhook()
		b.unhook = nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	if b.sub != nil {
		b.sub.Close()
	}
	b.wg.Wait()
	return nil
}
