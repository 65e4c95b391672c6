package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/log"
	"guestbook/internal/metrics"
)

var ErrSubscriberFull = errors.New("subscriber buffer full")

// Hub fans change events out to observers. Notify delivers in the caller's
// goroutine, NotifyAsync queues the event for the worker pool.
type Hub struct {
	observers        map[string]common.Observer
	eventChannel     chan common.ChangeEvent
	workerPool       int
	subscriberBuffer int
	ctx              context.Context
	cancel           context.CancelFunc
	mu               sync.RWMutex
	wg               sync.WaitGroup
	once             sync.Once
}

func NewHub(cfg *config.Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Realtime.Workers
	if workers <= 0 {
		workers = 1
	}
	buffer := cfg.Realtime.ChannelBufferSize
	if buffer <= 0 {
		buffer = 1000
	}
	subBuffer := cfg.Realtime.SubscriberBuffer
	if subBuffer <= 0 {
		subBuffer = 64
	}

	h := &Hub{
		observers:        make(map[string]common.Observer),
		eventChannel:     make(chan common.ChangeEvent, buffer),
		workerPool:       workers,
		subscriberBuffer: subBuffer,
		ctx:              ctx,
		cancel:           cancel,
	}

	for i := 0; i < workers; i++ {
		h.wg.Add(1)
		go h.processEvents()
	}

	return h
}

func (h *Hub) Subscribe(observer common.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.observers[observer.Name()]; !exists {
		metrics.Subscribers.Inc()
	}
	h.observers[observer.Name()] = observer
}

func (h *Hub) Unsubscribe(observer common.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.observers[observer.Name()]; exists {
		metrics.Subscribers.Dec()
	}
	delete(h.observers, observer.Name())
}

func (h *Hub) Notify(event common.ChangeEvent) {
	h.mu.RLock()
	observers := make([]common.Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		observers = append(observers, obs)
	}
	h.mu.RUnlock()

	metrics.RealtimeEvents.WithLabelValues(event.Table, event.Type.String()).Inc()

	for _, observer := range observers {
		if err := observer.Update(event); err != nil {
			if errors.Is(err, ErrSubscriberFull) {
				metrics.RealtimeDropped.Inc()
			}
			log.Warn.Printf("Observer %s update failed: %v", observer.Name(), err)
		}
	}
}

func (h *Hub) NotifyAsync(event common.ChangeEvent) {
	select {
	case <-h.ctx.Done():
		return
	default:
	}

	select {
	case h.eventChannel <- event:
	case <-h.ctx.Done():
	default:
		metrics.RealtimeDropped.Inc()
		log.Warn.Printf("Change feed queue full, dropping %s event on %s", event.Type, event.Table)
	}
}

func (h *Hub) processEvents() {
	defer h.wg.Done()

	for {
		select {
		case event := <-h.eventChannel:
			h.Notify(event)
		case <-h.ctx.Done():
			return
		}
	}
}

// Listen subscribes to one table. The returned channel never closes; stop
// reading after calling the cancel function.
func (h *Hub) Listen(table string, mask common.EventMask) (<-chan common.ChangeEvent, func()) {
	sub := h.Channel(table, mask)
	return sub.Events(), sub.Close
}

// Channel subscribes to one table and returns the subscription handle.
func (h *Hub) Channel(table string, mask common.EventMask) *Subscription {
	sub := &Subscription{
		name:  "sub:" + table + ":" + uuid.NewString(),
		table: table,
		mask:  mask,
		ch:    make(chan common.ChangeEvent, h.subscriberBuffer),
		done:  make(chan struct{}),
		hub:   h,
	}
	h.Subscribe(sub)
	return sub
}

// Done is closed when the hub shuts down.
func (h *Hub) Done() <-chan struct{} {
	return h.ctx.Done()
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

func (h *Hub) Shutdown() {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
		log.Info.Println("Realtime hub shutdown complete")
	})
}

// Subscription is an observer that buffers matching events for one reader.
// A full buffer drops the event instead of blocking the publisher.
type Subscription struct {
	name  string
	table string
	mask  common.EventMask
	ch    chan common.ChangeEvent
	done  chan struct{}
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) Name() string { return s.name }

func (s *Subscription) Update(event common.ChangeEvent) error {
	if event.Table != s.table || !s.mask.Has(event.Type) {
		return nil
	}
	select {
	case <-s.done:
		return nil
	default:
	}
	select {
	case s.ch <- event:
		return nil
	default:
		return ErrSubscriberFull
	}
}

func (s *Subscription) Events() <-chan common.ChangeEvent { return s.ch }

// Done is closed by Close.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.Unsubscribe(s)
		close(s.done)
	})
}
