package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/database"
)

const (
	minSize     = 10
	maxSize     = 5000
	maxPageSize = 50
)

type Entry struct {
	PlayerID uuid.UUID
	Points   int64
	Tier     int
}

//go:generate mockgen -source=leaderboard.go -destination=mock/repository.go -package=mock Repository

type Repository interface {
	// Top returns at most limit entries ordered by points descending.
	Top(ctx context.Context, serverID string, season int, limit int) ([]Entry, error)
}

// Cache serves leaderboard reads from a snapshot that is replaced wholesale on
// every refresh.
type Cache struct {
	repo     Repository
	state    database.StateReporter
	exec     *async.Executor
	serverID string
	season   int
	size     int

	snap atomic.Pointer[[]Entry]
}

// NewCache clamps size to [10, 5000].
func NewCache(repo Repository, state database.StateReporter, exec *async.Executor, serverID string, season, size int) *Cache {
	c := &Cache{
		repo:     repo,
		state:    state,
		exec:     exec,
		serverID: serverID,
		season:   season,
		size:     max(minSize, min(maxSize, size)),
	}
	empty := []Entry{}
	c.snap.Store(&empty)
	return c
}

func (c *Cache) Size() int { return c.size }

// Refresh runs RefreshNow on the executor.
func (c *Cache) Refresh() *async.Future[struct{}] {
	if !database.Online(c.state) {
		return async.Resolved(struct{}{})
	}
	return async.Run(c.exec, c.RefreshNow)
}

// RefreshNow reloads the snapshot. The current snapshot is kept while the
// store is offline or when the query fails.
func (c *Cache) RefreshNow(ctx context.Context) error {
	if !database.Online(c.state) {
		return nil
	}
	rows, err := c.repo.Top(ctx, c.serverID, c.season, c.size)
	if err != nil {
		return fmt.Errorf("failed to refresh leaderboard: %w", err)
	}
	if len(rows) > c.size {
		rows = rows[:c.size]
	}
	c.snap.Store(&rows)
	slog.Debug("Leaderboard refreshed",
		slog.String("type", "cache"),
		slog.Int("entries", len(rows)))
	return nil
}

// Top returns the whole snapshot. Callers must not modify it.
func (c *Cache) Top() []Entry {
	return *c.snap.Load()
}

// Page returns one page of the snapshot. page is clamped to >= 1 and size to
// [1, 50]; a page past the end is empty.
func (c *Cache) Page(page, size int) []Entry {
	page = max(1, page)
	size = max(1, min(maxPageSize, size))

	list := *c.snap.Load()
	pages := (len(list) + size - 1) / size
	if page > pages {
		return []Entry{}
	}
	from := (page - 1) * size
	to := min(len(list), from+size)
	return list[from:to:to]
}

// Rank returns the 1-based position of playerID in the snapshot.
func (c *Cache) Rank(playerID uuid.UUID) (int, bool) {
	for i, e := range *c.snap.Load() {
		if e.PlayerID == playerID {
			return i + 1, true
		}
	}
	return 0, false
}
