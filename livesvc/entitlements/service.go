package entitlements

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
)

const (
	defaultCacheSize = 10000
	defaultCacheTTL  = 2 * time.Minute
)

//go:generate mockgen -source=service.go -destination=mock/repository.go -package=mock Repository,Broadcaster

type Repository interface {
	// Exists reports whether a matching row exists that has no expiry or
	// expires after now.
	Exists(ctx context.Context, l Lookup, now time.Time) (bool, error)
	Upsert(ctx context.Context, e Entitlement) error
	Delete(ctx context.Context, l Lookup) error
}

// Broadcaster tells other servers to drop cached entries for a player.
type Broadcaster interface {
	PublishInvalidate(ctx context.Context, playerID uuid.UUID) error
}

type cachedEntry struct {
	ok       bool
	cachedAt time.Time
}

// Service is a read-through cache over the entitlement store.
type Service struct {
	repo        Repository
	state       database.StateReporter
	exec        *async.Executor
	clock       clock.Clock
	cache       *lru.Cache
	ttl         time.Duration
	broadcaster atomic.Pointer[Broadcaster]

	// generation moves on every invalidation. A lookup that raced with one
	// does not cache its result. fillMu makes the generation check and the
	// cache insert atomic with respect to Invalidate.
	generation atomic.Uint64
	fillMu     sync.Mutex
}

func NewService(repo Repository, state database.StateReporter, exec *async.Executor, clk clock.Clock, size int, ttl time.Duration) (*Service, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create entitlement cache: %w", err)
	}
	return &Service{
		repo:  repo,
		state: state,
		exec:  exec,
		clock: clk,
		cache: cache,
		ttl:   ttl,
	}, nil
}

func (s *Service) SetBroadcaster(b Broadcaster) {
	if b == nil {
		s.broadcaster.Store(nil)
		return
	}
	s.broadcaster.Store(&b)
}

// Has answers from the cache when it can and otherwise runs exactly one
// existence query. While the store is offline the answer is false and is not
// cached.
func (s *Service) Has(playerID uuid.UUID, scope Scope, serverID, key string) *async.Future[bool] {
	l, err := newLookup(playerID, scope, serverID, key)
	if err != nil {
		return async.Failed[bool](err)
	}
	ck := l.cacheKey()
	if ok, hit := s.cached(ck); hit {
		return async.Resolved(ok)
	}

	gen := s.generation.Load()
	return async.Submit(s.exec, func(ctx context.Context) (bool, error) {
		if !database.Online(s.state) {
			return false, nil
		}
		ok, err := s.repo.Exists(ctx, l, s.clock.Now())
		if err != nil {
			return false, fmt.Errorf("failed to check entitlement: %w", err)
		}
		s.fill(ck, gen, ok)
		return ok, nil
	})
}

// fill caches a lookup result unless an invalidation ran since gen was read.
func (s *Service) fill(ck string, gen uint64, ok bool) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.generation.Load() == gen {
		s.cache.Add(ck, cachedEntry{ok: ok, cachedAt: s.clock.Now()})
	}
}

func (s *Service) cached(ck string) (ok, hit bool) {
	v, found := s.cache.Get(ck)
	if !found {
		return false, false
	}
	entry, valid := v.(cachedEntry)
	if !valid || s.clock.Now().Sub(entry.cachedAt) >= s.ttl {
		s.cache.Remove(ck)
		return false, false
	}
	return entry.ok, true
}

// Grant upserts the entitlement. Cached entries for the player are dropped
// only after the write has landed. While the store is offline it is a no-op.
func (s *Service) Grant(playerID uuid.UUID, scope Scope, serverID, key string, expiresAt *time.Time) *async.Future[struct{}] {
	l, err := newLookup(playerID, scope, serverID, key)
	if err != nil {
		return async.Failed[struct{}](err)
	}
	e := Entitlement{PlayerID: l.PlayerID, Scope: l.Scope, ServerID: l.ServerID, Key: l.Key, ExpiresAt: expiresAt}

	return async.Run(s.exec, func(ctx context.Context) error {
		if !database.Online(s.state) {
			return nil
		}
		if err := s.repo.Upsert(ctx, e); err != nil {
			return fmt.Errorf("failed to grant entitlement: %w", err)
		}
		s.afterWrite(ctx, playerID)
		return nil
	})
}

func (s *Service) Revoke(playerID uuid.UUID, scope Scope, serverID, key string) *async.Future[struct{}] {
	l, err := newLookup(playerID, scope, serverID, key)
	if err != nil {
		return async.Failed[struct{}](err)
	}

	return async.Run(s.exec, func(ctx context.Context) error {
		if !database.Online(s.state) {
			return nil
		}
		if err := s.repo.Delete(ctx, l); err != nil {
			return fmt.Errorf("failed to revoke entitlement: %w", err)
		}
		s.afterWrite(ctx, playerID)
		return nil
	})
}

func (s *Service) afterWrite(ctx context.Context, playerID uuid.UUID) {
	s.Invalidate(playerID)

	b := s.broadcaster.Load()
	if b == nil {
		return
	}
	if err := (*b).PublishInvalidate(ctx, playerID); err != nil {
		slog.Warn("Failed to broadcast entitlement invalidation",
			slog.String("type", "cache"),
			slog.String("player", playerID.String()),
			slog.Any("error", err))
	}
}

// Invalidate drops every cached entry for the player.
func (s *Service) Invalidate(playerID uuid.UUID) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.generation.Add(1)
	prefix := playerPrefix(playerID)
	for _, k := range s.cache.Keys() {
		if ks, ok := k.(string); ok && strings.HasPrefix(ks, prefix) {
			s.cache.Remove(k)
		}
	}
}

// Housekeep evicts entries older than the TTL and returns how many it removed.
func (s *Service) Housekeep() int {
	now := s.clock.Now()
	removed := 0
	for _, k := range s.cache.Keys() {
		v, ok := s.cache.Peek(k)
		if !ok {
			continue
		}
		if entry, valid := v.(cachedEntry); !valid || now.Sub(entry.cachedAt) >= s.ttl {
			s.cache.Remove(k)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Entitlement cache housekeeping",
			slog.String("type", "cache"),
			slog.Int("evicted", removed),
			slog.Int("remaining", s.cache.Len()))
	}
	return removed
}

func (s *Service) Len() int {
	return s.cache.Len()
}
