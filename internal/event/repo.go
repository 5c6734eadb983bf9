package event

import (
	"sync"
	"time"

	"linscore/internal/utils"
)

const sweepInterval = time.Minute

// Repository keeps the most recent events of every entity in a fixed-length ring buffer.
// Entities that received no event for longer than the TTL are removed by Serve.
//
//	repo := event.NewRepository(100, time.Hour)
//	go repo.Serve()
//	repo.Append("S1", event.Event{"play_pressed": true})
//
// Repository is safe for concurrent use.
type Repository struct {
	length int
	ttl    time.Duration

	events  map[string]*utils.RingBuffer[Event]
	updates map[string]time.Time
	mu      sync.RWMutex

	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewRepository creates a repository keeping at most length events per entity.
// A non-positive ttl disables expiry.
func NewRepository(length int, ttl time.Duration) *Repository {
	return &Repository{
		length:  length,
		ttl:     ttl,
		events:  make(map[string]*utils.RingBuffer[Event]),
		updates: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Append stores e for entity id and refreshes the entity's last update time.
func (r *Repository) Append(id string, e Event) {
	r.mu.Lock()
	buffer, found := r.events[id]
	if !found {
		buffer = utils.NewRingBuffer[Event](r.length)
		r.events[id] = buffer
	}
	r.updates[id] = r.now()
	r.mu.Unlock()

	buffer.Push(e)
}

// Get returns a copy of the events of id, oldest first.
func (r *Repository) Get(id string) ([]Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buffer, found := r.events[id]
	if !found {
		return nil, false
	}
	return buffer.ToSlice(), true
}

// Snapshot returns a copy of the events of every entity.
func (r *Repository) Snapshot() map[string][]Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(map[string][]Event, len(r.events))
	for id, buffer := range r.events {
		snapshot[id] = buffer.ToSlice()
	}
	return snapshot
}

// Len returns the number of buffered entities.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// Sweep removes the entities whose last update is older than the TTL
// and returns how many were removed.
func (r *Repository) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}

	var outdated []string
	r.mu.RLock()
	now := r.now()
	for id, ts := range r.updates {
		if now.Sub(ts) > r.ttl {
			outdated = append(outdated, id)
		}
	}
	r.mu.RUnlock()

	if len(outdated) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for _, id := range outdated {
		// the entity may have been refreshed between the two locks
		if ts, found := r.updates[id]; found && now.Sub(ts) > r.ttl {
			delete(r.events, id)
			delete(r.updates, id)
			removed++
		}
	}
	return removed
}

// Serve sweeps outdated entities once a minute until Stop is called.
// It blocks and is meant to run in its own goroutine.
func (r *Repository) Serve() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.done:
			return
		}
	}
}

// Stop terminates Serve. It is safe to call more than once, and before Serve.
func (r *Repository) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}
