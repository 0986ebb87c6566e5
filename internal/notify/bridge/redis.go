// Package bridge replicates bus events across service instances through
// Redis pub/sub, so a notification published on one instance reaches
// streams held by another. Delivery stays fire-and-forget: a Redis outage
// degrades to single-instance fan-out and never fails a publisher.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/platform/config"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/metrics"
)

// remoteIDWindow bounds the set of event ids remembered as
// remote-originated, which keeps replicated events from echoing back out.
const remoteIDWindow = 1024

// envelope wraps an event with the id of the instance that first published
// it, so instances skip their own messages.
type envelope struct {
	Origin string        `json:"origin"`
	Event  *notify.Event `json:"event"`
}

// RedisBridge connects a local bus to a Redis channel
type RedisBridge struct {
	client   *redis.Client
	bus      *notify.Bus
	channel  string
	originID string
	log      logger.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	remoteIDs map[string]struct{}
	remoteLog []string

	outbound    chan *notify.Event
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
}

// New connects to Redis and creates a bridge for the given bus
func New(cfg config.RedisConfig, bus *notify.Bus, log logger.Logger, m *metrics.Metrics) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBridge{
		client:    client,
		bus:       bus,
		channel:   cfg.Channel,
		originID:  uuid.New().String(),
		log:       log,
		metrics:   m,
		remoteIDs: make(map[string]struct{}),
		outbound:  make(chan *notify.Event, 64),
		done:      make(chan struct{}),
	}, nil
}

// Start begins forwarding local events to Redis and replicating remote
// events into the local bus.
func (b *RedisBridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.unsubscribe = b.bus.Subscribe(b.enqueueLocal)

	go b.forwardLoop(ctx)
	go b.receiveLoop(ctx)
}

// enqueueLocal queues a bus event for forwarding to Redis. Events that
// arrived through the bridge themselves are skipped, otherwise every
// instance would forward every event back out again.
func (b *RedisBridge) enqueueLocal(e *notify.Event) {
	if b.isRemote(e.ID) {
		return
	}
	select {
	case b.outbound <- e:
	default:
		b.log.Warn("bridge outbound buffer full, dropping event", "event_id", e.ID)
	}
}

func (b *RedisBridge) forwardLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.outbound:
			payload, err := json.Marshal(envelope{Origin: b.originID, Event: e})
			if err != nil {
				continue
			}
			if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
				b.log.Warn("bridge publish failed", "event_id", e.ID, "error", err)
				if b.metrics != nil {
					b.metrics.BridgeErrors.Inc()
				}
				continue
			}
			if b.metrics != nil {
				b.metrics.BridgeMessagesOut.Inc()
			}
		}
	}
}

func (b *RedisBridge) receiveLoop(ctx context.Context) {
	defer close(b.done)

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage([]byte(msg.Payload))
		}
	}
}

// handleMessage replicates one channel message into the local bus. Own
// messages come back on the subscription too and are dropped by origin id;
// replicated events are marked remote first so enqueueLocal does not
// forward them again.
func (b *RedisBridge) handleMessage(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == nil {
		if b.metrics != nil {
			b.metrics.BridgeErrors.Inc()
		}
		return
	}
	if env.Origin == b.originID {
		return
	}
	b.markRemote(env.Event.ID)
	b.bus.Publish(env.Event)
	if b.metrics != nil {
		b.metrics.BridgeMessagesIn.Inc()
	}
}

// Ping reports Redis reachability, for readiness checks
func (b *RedisBridge) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close stops both loops and releases the Redis connection
func (b *RedisBridge) Close() error {
	b.closeOnce.Do(func() {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		if b.cancel != nil {
			b.cancel()
			<-b.done
		}
		b.client.Close()
	})
	return nil
}

func (b *RedisBridge) markRemote(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remoteIDs[id] = struct{}{}
	b.remoteLog = append(b.remoteLog, id)
	if len(b.remoteLog) > remoteIDWindow {
		delete(b.remoteIDs, b.remoteLog[0])
		b.remoteLog = b.remoteLog[1:]
	}
}

func (b *RedisBridge) isRemote(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.remoteIDs[id]
	return ok
}
