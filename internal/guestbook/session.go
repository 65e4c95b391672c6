package guestbook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"guestbook/internal/common"
	"guestbook/internal/log"
	"guestbook/internal/metrics"
)

const maxInboxNotices = 50

// DefaultMaxSessions caps the registry when no limit is configured.
const DefaultMaxSessions = 1000

// Inbox holds notices for one session until the client picks them up.
type Inbox struct {
	mu      sync.Mutex
	notices []common.Notice
}

func (i *Inbox) push(level, text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.notices = append(i.notices, common.Notice{Level: level, Text: text, At: time.Now()})
	if len(i.notices) > maxInboxNotices {
		i.notices = i.notices[len(i.notices)-maxInboxNotices:]
	}
}

func (i *Inbox) Success(text string) { i.push(common.NoticeSuccess, text) }
func (i *Inbox) Error(text string)   { i.push(common.NoticeError, text) }

// Drain returns and clears the pending notices.
func (i *Inbox) Drain() []common.Notice {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.notices
	i.notices = nil
	if out == nil {
		out = []common.Notice{}
	}
	return out
}

// Session is one browser tab's controller.
type Session struct {
	ID         string
	Controller *Controller
	Inbox      *Inbox

	mountOnce sync.Once
	lastSeen  time.Time
}

type ControllerFactory func(notifier Notifier) *Controller

// Registry maps session ids to controllers and closes idle ones. At
// maxSessions the least recently seen session makes room for a new one.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	factory     ControllerFactory
	ttl         time.Duration
	maxSessions int
	now         func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewRegistry(factory ControllerFactory, ttl time.Duration, maxSessions int) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	r := &Registry{
		sessions:    make(map[string]*Session),
		factory:     factory,
		ttl:         ttl,
		maxSessions: maxSessions,
		now:         time.Now,
		stop:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.janitor()
	return r
}

// Acquire returns the live session for id, or a new mounted one (with a
// fresh id) when id is empty or unknown. created reports the latter.
func (r *Registry) Acquire(ctx context.Context, id string) (session *Session, created bool) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok && id != "" {
		s.lastSeen = r.now()
		r.mu.Unlock()
		s.mount(ctx)
		return s, false
	}

	evicted := r.evictOldest()

	inbox := &Inbox{}
	s := &Session{
		ID:         uuid.NewString(),
		Controller: r.factory(inbox),
		Inbox:      inbox,
		lastSeen:   r.now(),
	}
	r.sessions[s.ID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if evicted != nil {
		metrics.SessionsEvicted.Inc()
		evicted.Controller.Close()
	}
	s.mount(ctx)
	return s, true
}

// evictOldest removes the least recently seen session when the registry is
// full. Callers hold r.mu and close the returned controller after unlocking.
func (r *Registry) evictOldest() *Session {
	if len(r.sessions) < r.maxSessions {
		return nil
	}
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.lastSeen.Before(oldest.lastSeen) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(r.sessions, oldest.ID)
	}
	return oldest
}

func (s *Session) mount(ctx context.Context) {
	s.mountOnce.Do(func() {
		s.Controller.Mount(ctx)
	})
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.lastSeen = r.now()
	}
	return s, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if ok {
		s.Controller.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle longer than the ttl and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, s := range expired {
		s.Controller.Close()
	}
	return len(expired)
}

func (r *Registry) janitor() {
	defer r.wg.Done()

	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Info.Printf("Closed %d idle guestbook sessions", n)
			}
		case <-r.stop:
			return
		}
	}
}

// Shutdown stops the janitor and closes every session.
func (r *Registry) Shutdown() {
	r.once.Do(func() {
		close(r.stop)
		r.wg.Wait()

		r.mu.Lock()
		sessions := r.sessions
		r.sessions = make(map[string]*Session)
		metrics.ActiveSessions.Set(0)
		r.mu.Unlock()

		for _, s := range sessions {
			s.Controller.Close()
		}
		log.Info.Println("Guestbook sessions closed")
	})
}
