// Package notify broadcasts ranking-parameter reloads between service instances
// over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultChannel = "ranking:reload"
	lastEventKey   = "ranking:last_reload"
)

// Event announces that the ranking config store changed.
type Event struct {
	Version uint64    `json:"version"`
	Origin  string    `json:"origin"`
	At      time.Time `json:"at"`
}

// Bus publishes and receives reload events. Events published by this Bus are not
// delivered back to it.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	log     logr.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// NewBus connects to Redis and verifies the connection.
func NewBus(redisURL string, log logr.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewBusWithClient(client, log), nil
}

// NewBusWithClient creates a bus from an existing Redis client
func NewBusWithClient(client *redis.Client, log logr.Logger) *Bus {
	return &Bus{
		client:  client,
		channel: defaultChannel,
		origin:  uuid.NewString(),
		log:     log,
		ready:   make(chan struct{}),
	}
}

// Origin identifies this bus in published events.
func (b *Bus) Origin() string {
	return b.origin
}

// Publish announces a reload and records it as the last event.
func (b *Bus) Publish(ctx context.Context, version uint64) error {
	payload, err := json.Marshal(Event{Version: version, Origin: b.origin, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal reload event: %w", err)
	}
	if err := b.client.Set(ctx, lastEventKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("record reload event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish reload event: %w", err)
	}
	return nil
}

// LastEvent returns the most recently published event, or nil if none was.
func (b *Bus) LastEvent(ctx context.Context) (*Event, error) {
	raw, err := b.client.Get(ctx, lastEventKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last reload event: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal reload event: %w", err)
	}
	return &ev, nil
}

// Ready is closed once Run has an active subscription.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Run delivers events from other instances to handle until ctx is cancelled.
// Malformed messages are logged and skipped.
func (b *Bus) Run(ctx context.Context, handle func(context.Context, Event)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Error(err, "malformed reload event", "payload", msg.Payload)
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			handle(ctx, ev)
		}
	}
}

// Close closes the Redis connection
func (b *Bus) Close() error {
	return b.client.Close()
}

// Ping checks if Redis is reachable
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
