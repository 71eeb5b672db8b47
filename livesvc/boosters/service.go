package boosters

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/entitlements"
)

const (
	defaultPurgeLimit = 500
	maxPurgeLoops     = 20
)

//go:generate mockgen -source=service.go -destination=mock/repository.go -package=mock Repository

type Repository interface {
	Insert(ctx context.Context, g Grant) error
	ListActive(ctx context.Context, now time.Time) ([]Grant, error)
	// DeleteExpired removes at most limit expired grants.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type scopeKey struct {
	scope    entitlements.Scope
	serverID string
	kind     Kind
}

type playerKey struct {
	playerID uuid.UUID
	scopeKey
}

type timed struct {
	multiplier float64
	expiresAt  time.Time
}

type snapshot struct {
	all    map[scopeKey][]timed
	player map[playerKey][]timed
}

// Service resolves booster multipliers from an in-memory snapshot of active
// grants. Reads never touch the store.
type Service struct {
	repo       Repository
	state      database.StateReporter
	exec       *async.Executor
	clock      clock.Clock
	purgeLimit int
	snap       atomic.Pointer[snapshot]
}

func NewService(repo Repository, state database.StateReporter, exec *async.Executor, clk clock.Clock, purgeLimit int) *Service {
	if purgeLimit <= 0 {
		purgeLimit = defaultPurgeLimit
	}
	s := &Service{repo: repo, state: state, exec: exec, clock: clk, purgeLimit: purgeLimit}
	s.snap.Store(&snapshot{all: map[scopeKey][]timed{}, player: map[playerKey][]timed{}})
	return s
}

// Multiplier returns the largest unexpired multiplier that applies to the
// player, or 1 when none does. A server context also sees network grants.
func (s *Service) Multiplier(playerID uuid.UUID, scope entitlements.Scope, serverID string, kind Kind) float64 {
	snap := s.snap.Load()
	now := s.clock.Now()

	network := scopeKey{scope: entitlements.ScopeNetwork, kind: kind}
	best, found := 0.0, false
	consider := func(list []timed) {
		for _, t := range list {
			if t.expiresAt.After(now) && (!found || t.multiplier > best) {
				best, found = t.multiplier, true
			}
		}
	}

	if scope != entitlements.ScopeNetwork {
		server := scopeKey{scope: entitlements.ScopeServer, serverID: serverID, kind: kind}
		consider(snap.all[server])
		consider(snap.player[playerKey{playerID: playerID, scopeKey: server}])
	}
	consider(snap.all[network])
	consider(snap.player[playerKey{playerID: playerID, scopeKey: network}])

	if !found {
		return 1
	}
	return best
}

func (s *Service) GrantToAll(scope entitlements.Scope, serverID string, kind Kind, multiplier float64, duration time.Duration) *async.Future[struct{}] {
	return s.grant(uuid.Nil, scope, serverID, kind, multiplier, duration)
}

func (s *Service) GrantToPlayer(playerID uuid.UUID, scope entitlements.Scope, serverID string, kind Kind, multiplier float64, duration time.Duration) *async.Future[struct{}] {
	if playerID == uuid.Nil {
		return async.Failed[struct{}](entitlements.ErrMissingPlayer)
	}
	return s.grant(playerID, scope, serverID, kind, multiplier, duration)
}

func (s *Service) grant(playerID uuid.UUID, scope entitlements.Scope, serverID string, kind Kind, multiplier float64, duration time.Duration) *async.Future[struct{}] {
	sid, err := scope.Resolve(serverID)
	if err != nil {
		return async.Failed[struct{}](err)
	}
	if duration < time.Second {
		duration = time.Second
	}
	g := Grant{
		Scope:      scope,
		ServerID:   sid,
		PlayerID:   playerID,
		Kind:       kind,
		Multiplier: Sanitize(multiplier),
		ExpiresAt:  s.clock.Now().Add(duration),
	}

	return async.Run(s.exec, func(ctx context.Context) error {
		if !database.Online(s.state) {
			return nil
		}
		if err := s.repo.Insert(ctx, g); err != nil {
			return fmt.Errorf("failed to insert booster: %w", err)
		}
		return s.Refresh(ctx)
	})
}

// Refresh rebuilds the snapshot from active grants. The previous snapshot is
// kept when the store is offline or the read fails.
func (s *Service) Refresh(ctx context.Context) error {
	if !database.Online(s.state) {
		return nil
	}
	grants, err := s.repo.ListActive(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to load boosters: %w", err)
	}

	next := &snapshot{
		all:    make(map[scopeKey][]timed),
		player: make(map[playerKey][]timed),
	}
	for _, g := range grants {
		key := scopeKey{scope: g.Scope, serverID: g.ServerID, kind: g.Kind}
		if g.Scope == entitlements.ScopeNetwork {
			key.serverID = ""
		}
		t := timed{multiplier: Sanitize(g.Multiplier), expiresAt: g.ExpiresAt}
		if g.ForAll() {
			next.all[key] = append(next.all[key], t)
		} else {
			pk := playerKey{playerID: g.PlayerID, scopeKey: key}
			next.player[pk] = append(next.player[pk], t)
		}
	}
	s.snap.Store(next)
	return nil
}

// PurgeExpired deletes expired grants in bounded batches.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	if !database.Online(s.state) {
		return 0, nil
	}
	now := s.clock.Now()
	var total int64
	for i := 0; i < maxPurgeLoops; i++ {
		n, err := s.repo.DeleteExpired(ctx, now, s.purgeLimit)
		if err != nil {
			return total, fmt.Errorf("failed to purge boosters: %w", err)
		}
		total += n
		if n < int64(s.purgeLimit) {
			break
		}
	}
	if total > 0 {
		slog.Info("Purged expired boosters",
			slog.String("type", "db"),
			slog.Int64("rows", total))
	}
	return total, nil
}
