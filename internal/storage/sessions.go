package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/journey"
)

var ErrSessionNotFound = errors.New("journey session not found")

type sessionEntry struct {
	mu sync.Mutex
	s  *journey.Session
	// touched is the last use in unix nanos
	touched atomic.Int64
}

// Sessions holds running journey sessions in memory. Operations on one
// session are serialized by its own lock. Sessions idle for longer than the
// TTL are dropped by Sweep.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewSessions returns an empty registry. A ttl <= 0 keeps sessions until
// they are removed.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{sessions: map[string]*sessionEntry{}, ttl: ttl, now: time.Now}
}

// Start registers a new session and returns its id.
func (c *Sessions) Start(s *journey.Session) string {
	id := ulid.Make().String()
	e := &sessionEntry{s: s}
	e.touched.Store(c.now().UnixNano())
	c.mu.Lock()
	c.sessions[id] = e
	c.mu.Unlock()
	return id
}

// With runs fn while holding the session's lock.
func (c *Sessions) With(id string, fn func(s *journey.Session) error) error {
	c.mu.RLock()
	e, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched.Store(c.now().UnixNano())
	return fn(e.s)
}

func (c *Sessions) Remove(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

func (c *Sessions) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Sweep removes sessions not used within the TTL and returns how many went.
func (c *Sessions) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	cutoff := c.now().Add(-c.ttl).UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.sessions {
		if e.touched.Load() < cutoff {
			delete(c.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Sessions) RunSweeper(ctx context.Context, interval time.Duration) {
	if c.ttl <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Int("active", c.Len()).Msg("journey sessions swept")
			}
		}
	}
}
