package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis"
	"github.com/google/uuid"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/log"
)

// RedisRelay shares change events between server instances through a
// redis pub/sub channel. Local events go out, remote events come back in
// through NotifyAsync with Origin set, so they are never forwarded twice.
type RedisRelay struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	hub     *Hub
	channel string
	origin  string
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRedisRelay returns nil, nil when no redis address is configured.
func NewRedisRelay(cfg *config.Config, hub *Hub) (*RedisRelay, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}

	r := &RedisRelay{
		client:  client,
		hub:     hub,
		channel: cfg.Redis.Channel,
		origin:  uuid.NewString(),
	}

	r.pubsub = client.Subscribe(r.channel)
	if _, err := r.pubsub.Receive(); err != nil {
		r.pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	hub.Subscribe(r)
	r.wg.Add(1)
	go r.listen()

	log.Info.Printf("Redis relay on %s (instance %s)", r.channel, r.origin)
	return r, nil
}

func (r *RedisRelay) Name() string { return "redis_relay" }

// Update publishes locally originated events.
func (r *RedisRelay) Update(event common.ChangeEvent) error {
	payload, ok, err := r.encode(event)
	if err != nil || !ok {
		return err
	}
	if err := r.client.Publish(r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (r *RedisRelay) encode(event common.ChangeEvent) ([]byte, bool, error) {
	if event.Origin != "" {
		return nil, false, nil
	}
	event.Origin = r.origin
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode change event: %w", err)
	}
	return payload, true, nil
}

// decode returns false for our own echoes and junk payloads.
func (r *RedisRelay) decode(payload string) (common.ChangeEvent, bool) {
	var event common.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Warn.Printf("Dropping malformed relay payload: %v", err)
		return common.ChangeEvent{}, false
	}
	if event.Origin == "" || event.Origin == r.origin || !event.Type.IsValid() {
		return common.ChangeEvent{}, false
	}
	return event, true
}

func (r *RedisRelay) listen() {
	defer r.wg.Done()
	for msg := range r.pubsub.Channel() {
		if event, ok := r.decode(msg.Payload); ok {
			r.hub.NotifyAsync(event)
		}
	}
}

func (r *RedisRelay) Close() error {
	if r == nil {
		return nil
	}
	var err error
	r.once.Do(func() {
		r.hub.Unsubscribe(r)
		err = r.pubsub.Close()
		r.wg.Wait()
		if cerr := r.client.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
