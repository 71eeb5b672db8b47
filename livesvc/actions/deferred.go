package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/clock"
	"github.com/orbis/livesvc/livesvc/database"
)

const (
	minDeferredTTL   = 30 * time.Second
	maxClaimLimit    = 500
	defaultPurgeSize = 1000
)

// DeferredEntry is one queued row. An empty ServerID is visible from every
// server.
type DeferredEntry struct {
	ServerID  string
	NameLC    string
	Action    DeferredAction
	Source    string
	ExpiresAt time.Time
}

//go:generate mockgen -source=deferred.go -destination=mock/repository.go -package=mock DeferredRepository

type DeferredRepository interface {
	Insert(ctx context.Context, entry DeferredEntry) error
	// ClaimDue deletes and returns up to limit unexpired rows for nameLC that
	// are scoped to serverID or to the whole network, oldest first. Selection
	// and deletion happen in one statement.
	ClaimDue(ctx context.Context, serverID, nameLC string, now time.Time, limit int) ([]DeferredAction, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// DeferredQueue holds actions addressed to players by name until they join.
type DeferredQueue struct {
	repo     DeferredRepository
	state    database.StateReporter
	exec     *async.Executor
	clock    clock.Clock
	bus      *Bus
	dispatch func(func())
	limit    int
}

func NewDeferredQueue(repo DeferredRepository, state database.StateReporter, exec *async.Executor, clk clock.Clock, bus *Bus, claimLimit int) *DeferredQueue {
	return &DeferredQueue{
		repo:     repo,
		state:    state,
		exec:     exec,
		clock:    clk,
		bus:      bus,
		dispatch: func(fn func()) { fn() },
		limit:    clampLimit(claimLimit),
	}
}

// SetDispatcher sets how replayed events are handed back to the dispatch
// goroutine. By default they are published on the goroutine that completed the
// claim.
func (q *DeferredQueue) SetDispatcher(dispatch func(func())) {
	if dispatch != nil {
		q.dispatch = dispatch
	}
}

// Enqueue stores action for playerName. serverID "" makes the entry network
// wide. ttl is floored at 30 seconds. A blank name is ignored.
func (q *DeferredQueue) Enqueue(serverID, playerName string, action DeferredAction, ttl time.Duration, source string) *async.Future[struct{}] {
	nameLC := NormalizeName(playerName)
	if nameLC == "" {
		return async.Resolved(struct{}{})
	}
	if ttl < minDeferredTTL {
		ttl = minDeferredTTL
	}
	entry := DeferredEntry{
		ServerID:  serverID,
		NameLC:    nameLC,
		Action:    action,
		Source:    source,
		ExpiresAt: q.clock.Now().Add(ttl),
	}

	return async.Run(q.exec, func(ctx context.Context) error {
		if !database.Online(q.state) {
			return nil
		}
		if err := q.repo.Insert(ctx, entry); err != nil {
			return fmt.Errorf("failed to enqueue deferred action: %w", err)
		}
		return nil
	})
}

// Claim removes up to limit pending actions for playerName and returns them
// attributed to playerID.
func (q *DeferredQueue) Claim(serverID, playerName string, playerID uuid.UUID, limit int) *async.Future[[]ActionEvent] {
	nameLC := NormalizeName(playerName)
	if nameLC == "" {
		return async.Failed[[]ActionEvent](ErrBlankName)
	}
	if playerID == uuid.Nil {
		return async.Failed[[]ActionEvent](ErrMissingPlayer)
	}
	limit = clampLimit(limit)

	return async.Submit(q.exec, func(ctx context.Context) ([]ActionEvent, error) {
		if !database.Online(q.state) {
			return nil, nil
		}
		rows, err := q.repo.ClaimDue(ctx, serverID, nameLC, q.clock.Now(), limit)
		if err != nil {
			return nil, fmt.Errorf("failed to claim deferred actions: %w", err)
		}
		if len(rows) > limit {
			rows = rows[:limit]
		}

		events := make([]ActionEvent, 0, len(rows))
		for _, row := range rows {
			ev, err := row.Attribute(playerID)
			if err != nil {
				slog.Warn("Dropping malformed deferred action",
					slog.String("type", "bus"),
					slog.String("player", nameLC),
					slog.Any("error", err))
				continue
			}
			events = append(events, ev)
		}
		return events, nil
	})
}

// ReplayOnJoin claims the player's pending actions and publishes them on the
// bus. The future resolves with the number of claimed events.
func (q *DeferredQueue) ReplayOnJoin(serverID, playerName string, playerID uuid.UUID) *async.Future[int] {
	claimed := q.Claim(serverID, playerName, playerID, q.limit)

	return async.Then(claimed, func(events []ActionEvent, err error) (int, error) {
		if err != nil || len(events) == 0 {
			return 0, err
		}
		q.dispatch(func() {
			for _, ev := range events {
				q.bus.Publish(ev)
			}
		})
		slog.Info("Replayed deferred actions",
			slog.String("type", "bus"),
			slog.String("player", playerID.String()),
			slog.Int("count", len(events)))
		return len(events), nil
	})
}

// PurgeExpired deletes expired rows. It runs on its own timer, independent of
// Claim.
func (q *DeferredQueue) PurgeExpired(ctx context.Context) (int64, error) {
	if !database.Online(q.state) {
		return 0, nil
	}
	n, err := q.repo.DeleteExpired(ctx, q.clock.Now(), defaultPurgeSize)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deferred actions: %w", err)
	}
	if n > 0 {
		slog.Debug("Purged expired deferred actions",
			slog.String("type", "db"),
			slog.Int64("rows", n))
	}
	return n, nil
}

func clampLimit(limit int) int {
	return max(1, min(maxClaimLimit, limit))
}
