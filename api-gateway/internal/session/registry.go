package session

import (
	"sync"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/cart"
	"github.com/fjod/partshop/api-gateway/internal/checkout"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultIdleTTL is how long an untouched workspace is kept.
	DefaultIdleTTL = 30 * time.Minute

	// DefaultCleanupInterval is how often idle workspaces are swept.
	DefaultCleanupInterval = time.Minute
)

// Workspace is the per-session state: one cart view and one checkout.
// Callers hold the lock while mutating Cart so changes apply in issue order.
type Workspace struct {
	sync.Mutex
	Cart *cart.Cart
	Flow *checkout.Flow

	lastSeen time.Time
}

// FlowFactory builds the checkout for a new session.
type FlowFactory func(s *Session) *checkout.Flow

type Registry struct {
	newFlow  FlowFactory
	ttl      time.Duration
	interval time.Duration
	log      *logrus.Entry
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewRegistry(newFlow FlowFactory, ttl, interval time.Duration, log *logrus.Entry) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	r := &Registry{
		newFlow:     newFlow,
		ttl:         ttl,
		interval:    interval,
		log:         log,
		now:         time.Now,
		workspaces:  make(map[string]*Workspace),
		stopCleanup: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// Workspace returns the session's workspace, creating it on first use.
func (r *Registry) Workspace(s *Session) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[s.ID]
	if !ok {
		ws = &Workspace{Cart: cart.New(), Flow: r.newFlow(s)}
		r.workspaces[s.ID] = ws
	}
	ws.lastSeen = r.now()
	return ws
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.expireIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

// expireIdle drops workspaces not touched within the TTL. A workspace with an
// order submission in flight is kept until the submission settles.
func (r *Registry) expireIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	expired := 0
	for id, ws := range r.workspaces {
		if ws.lastSeen.After(cutoff) || ws.Flow.View().Submitting {
			continue
		}
		delete(r.workspaces, id)
		expired++
	}
	if expired > 0 {
		r.log.WithField("expired", expired).Debug("Expired idle sessions")
	}
}

// Close stops the cleanup loop.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })
	r.wg.Wait()
}
