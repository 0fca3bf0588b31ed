package server

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/checkout"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/danmuck/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultSessionIdleTTL = 30 * time.Minute
	DefaultMaxSessions    = 10000

	minSweepInterval = time.Second
	maxSweepInterval = time.Minute
)

// SessionLimits bounds the in-memory registry. Zero fields take the defaults.
type SessionLimits struct {
	// IdleTTL drops a session that has not been used for this long.
	IdleTTL time.Duration
	// Max caps the number of sessions; opening one more evicts the least
	// recently used.
	Max int
}

func (l SessionLimits) withDefaults() SessionLimits {
	if l.IdleTTL <= 0 {
		l.IdleTTL = DefaultSessionIdleTTL
	}
	if l.Max <= 0 {
		l.Max = DefaultMaxSessions
	}
	return l
}

// Session is one shopper: a cart controller and the checkout flow built on it.
type Session struct {
	ID       string
	Created  time.Time
	Cart     *cart.Controller
	Checkout *checkout.Orchestrator

	lastUsed atomic.Int64
}

func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

// Sessions maps session ids to their controllers. Evicting a session only
// forgets the in-memory controllers; the stored cart id survives, so a
// shopper returning with the same id gets the same cart back.
type Sessions struct {
	api      commerce.Adapter
	kv       store.KV
	cartOpts []cart.Option
	limits   SessionLimits
	logger   zerolog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	byID map[string]*Session
}

func NewSessions(api commerce.Adapter, kv store.KV, limits SessionLimits, cartOpts ...cart.Option) *Sessions {
	if kv == nil {
		kv = store.NewMemory()
	}
	return &Sessions{
		api:      api,
		kv:       kv,
		cartOpts: cartOpts,
		limits:   limits.withDefaults(),
		logger:   observability.Component("sessions"),
		now:      time.Now,
		byID:     make(map[string]*Session),
	}
}

func (s *Sessions) Limits() SessionLimits {
	return s.limits
}

// Open returns the session for id, creating it when unknown. A blank or
// malformed id gets a fresh uuid.
func (s *Sessions) Open(id string) (*Session, bool) {
	id = normalizeSessionID(id)
	now := s.now()
	s.mu.RLock()
	sess, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		sess.touch(now)
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[id]; ok {
		sess.touch(now)
		return sess, false
	}
	if len(s.byID) >= s.limits.Max {
		s.makeRoomLocked(now)
	}

	kv := store.Scoped(s.kv, "session/"+id)
	opts := append([]cart.Option{cart.WithLogger(s.logger.With().Str("session_id", id).Logger())}, s.cartOpts...)
	c := cart.New(s.api, kv, opts...)
	sess = &Session{
		ID:       id,
		Created:  now,
		Cart:     c,
		Checkout: checkout.New(s.api, c),
	}
	sess.touch(now)
	s.byID[id] = sess
	observability.SetActiveSessions(len(s.byID))
	s.logger.Debug().Str("session_id", id).Msg("session opened")
	return sess, true
}

func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.byID[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if ok {
		sess.touch(s.now())
	}
	return sess, ok
}

// Close forgets the in-memory session. The stored cart id survives.
func (s *Sessions) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	observability.SetActiveSessions(len(s.byID))
	return true
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Sweep drops every session idle for longer than the idle TTL and reports
// how many went.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.sweepLocked(s.now())
	if n > 0 {
		observability.SetActiveSessions(len(s.byID))
		s.logger.Debug().Int("evicted", n).Int("active", len(s.byID)).Msg("idle sessions swept")
	}
	return n
}

// Run sweeps idle sessions until ctx is done.
func (s *Sessions) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) sweepInterval() time.Duration {
	interval := s.limits.IdleTTL / 2
	if interval < minSweepInterval {
		return minSweepInterval
	}
	if interval > maxSweepInterval {
		return maxSweepInterval
	}
	return interval
}

func (s *Sessions) sweepLocked(now time.Time) int {
	cutoff := now.Add(-s.limits.IdleTTL)
	n := 0
	for id, sess := range s.byID {
		if sess.LastUsed().Before(cutoff) {
			delete(s.byID, id)
			n++
		}
	}
	observability.RecordSessionEvictions("idle", n)
	return n
}

// makeRoomLocked frees one slot: idle sessions go first, then the least
// recently used one.
func (s *Sessions) makeRoomLocked(now time.Time) {
	if s.sweepLocked(now) > 0 && len(s.byID) < s.limits.Max {
		return
	}
	var oldest *Session
	for _, sess := range s.byID {
		if oldest == nil || sess.LastUsed().Before(oldest.LastUsed()) {
			oldest = sess
		}
	}
	if oldest == nil {
		return
	}
	delete(s.byID, oldest.ID)
	observability.RecordSessionEvictions("capacity", 1)
	s.logger.Warn().Str("session_id", oldest.ID).Int("max", s.limits.Max).Msg("session registry full, evicted least recently used")
}

func normalizeSessionID(id string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.NewString()
	}
	return parsed.String()
}
